// Package assets tracks fixed assets and posts their monthly straight-line
// depreciation.
package assets

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleStatus is the state of one depreciation period.
type ScheduleStatus string

const (
	StatusPending ScheduleStatus = "PENDING"
	StatusPosted  ScheduleStatus = "POSTED"
)

// Asset is a fixed asset with its optional depreciation setting and schedule.
type Asset struct {
	ID              int64           `json:"id"`
	BusinessID      int64           `json:"business_id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	AcquisitionDate time.Time       `json:"acquisition_date"`
	AcquisitionCost decimal.Decimal `json:"acquisition_cost"`
	AssetAccountID  int64           `json:"asset_account_id"`
	Setting         *Setting        `json:"depreciation_setting,omitempty"`
	Schedule        []ScheduleRow   `json:"schedule,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Setting drives schedule generation.
type Setting struct {
	AssetID              int64           `json:"asset_id"`
	StartDate            time.Time       `json:"depreciation_start_date"`
	UsefulLifeMonths     int             `json:"useful_life_months"`
	SalvageValue         decimal.Decimal `json:"salvage_value"`
	ExpenseAccountID     int64           `json:"expense_account_id"`
	AccumulatedAccountID int64           `json:"accumulated_account_id"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ScheduleRow is one month of depreciation.
type ScheduleRow struct {
	ID             int64           `json:"id"`
	AssetID        int64           `json:"asset_id"`
	PeriodNo       int             `json:"period_no"`
	Date           time.Time       `json:"schedule_date"`
	Amount         decimal.Decimal `json:"depreciation_amount"`
	Accumulated    decimal.Decimal `json:"accumulated_amount"`
	BookValue      decimal.Decimal `json:"book_value"`
	Status         ScheduleStatus  `json:"status"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	PostedAt       *time.Time      `json:"posted_at,omitempty"`
}

// PostedDepreciation sums the POSTED rows.
func (a Asset) PostedDepreciation() decimal.Decimal {
	total := decimal.Zero
	for _, row := range a.Schedule {
		if row.Status == StatusPosted {
			total = total.Add(row.Amount)
		}
	}
	return total
}

// BookValue is acquisition cost less posted depreciation.
func (a Asset) BookValue() decimal.Decimal {
	return a.AcquisitionCost.Sub(a.PostedDepreciation())
}

func (a Asset) postedRows() int {
	n := 0
	for _, row := range a.Schedule {
		if row.Status == StatusPosted {
			n++
		}
	}
	return n
}

// AssetInput creates an asset, optionally with its setting.
type AssetInput struct {
	BusinessID      int64
	Code            string
	Name            string
	AcquisitionDate time.Time
	AcquisitionCost decimal.Decimal
	AssetAccountID  int64
	Setting         *SettingInput
}

// SettingInput replaces the depreciation setting of an asset.
type SettingInput struct {
	StartDate            time.Time
	UsefulLifeMonths     int
	SalvageValue         decimal.Decimal
	ExpenseAccountID     int64
	AccumulatedAccountID int64
}

// RunResult identifies the entry a schedule row produced. JournalEntryID is
// nil for zero-amount rows, which are marked posted without an entry.
type RunResult struct {
	ScheduleID     int64  `json:"schedule_id"`
	AssetID        int64  `json:"asset_id"`
	PeriodNo       int    `json:"period_no"`
	JournalEntryID *int64 `json:"journal_entry_id"`
}

// RunFailure reports a row that could not be posted during a due run.
type RunFailure struct {
	ScheduleID int64  `json:"schedule_id"`
	AssetID    int64  `json:"asset_id"`
	Error      string `json:"error"`
}

// DueResult summarizes a due-depreciation run.
type DueResult struct {
	AsOf   time.Time    `json:"as_of"`
	Posted []RunResult  `json:"posted"`
	Failed []RunFailure `json:"failed,omitempty"`
}
