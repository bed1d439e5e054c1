package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID              int64         `json:"id"`
	BusinessID      int64         `json:"business_id"`
	EntryDate       time.Time     `json:"entry_date"`
	Description     string        `json:"description"`
	ReferenceNumber *string       `json:"reference_number,omitempty"`
	CreatedBy       *int64        `json:"created_by,omitempty"`
	SourceModule    string        `json:"source_module,omitempty"`
	SourceID        *uuid.UUID    `json:"source_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Lines           []JournalLine `json:"lines"`
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID             int64            `json:"id"`
	JournalEntryID int64            `json:"journal_entry_id"`
	LineNo         int              `json:"line_no"`
	AccountID      int64            `json:"account_id"`
	EntryType      shared.EntryType `json:"entry_type"`
	Amount         decimal.Decimal  `json:"amount"`
}

// Totals sums the debit and credit sides.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, line := range e.Lines {
		if line.EntryType == shared.Debit {
			debit = debit.Add(line.Amount)
		} else {
			credit = credit.Add(line.Amount)
		}
	}
	return debit, credit
}

// AccountRef is the minimal account view needed to accept a line.
type AccountRef struct {
	ID          int64
	BusinessID  int64
	HasChildren bool
	IsActive    bool
}
