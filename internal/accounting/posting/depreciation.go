package posting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DepreciationRun posts one schedule row: debit expense, credit accumulated depreciation.
type DepreciationRun struct {
	BusinessID           int64
	ScheduleID           int64
	AssetCode            string
	PeriodNo             int
	Date                 time.Time
	ExpenseAccountID     int64
	AccumulatedAccountID int64
	Amount               decimal.Decimal
}

func (DepreciationRun) rule() {}

// Derive implements Rule.
func (r DepreciationRun) Derive() (journals.EntryInput, error) {
	if !r.Amount.IsPositive() {
		return journals.EntryInput{}, ErrNothingToPost
	}
	return journals.EntryInput{
		BusinessID:   r.BusinessID,
		Date:         r.Date,
		Description:  fmt.Sprintf("Depreciation %s period %d (%s)", r.AssetCode, r.PeriodNo, FormatAmount(r.Amount)),
		Reference:    r.AssetCode,
		SourceModule: ModuleDepreciation,
		SourceID:     SourceID("DEPRECIATION", r.ScheduleID),
		Lines: []journals.LineInput{
			{AccountID: r.ExpenseAccountID, EntryType: shared.Debit, Amount: r.Amount},
			{AccountID: r.AccumulatedAccountID, EntryType: shared.Credit, Amount: r.Amount},
		},
	}, nil
}
