// Package savings records cooperative member savings deposits and withdrawals.
package savings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
)

// Member is a cooperative member of one business.
type Member struct {
	ID         int64     `json:"id"`
	BusinessID int64     `json:"business_id"`
	Number     string    `json:"number"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Type maps a savings product to its liability account and, optionally, to
// the cash or bank account it settles through.
type Type struct {
	ID                  int64  `json:"id"`
	BusinessID          int64  `json:"business_id"`
	Code                string `json:"code"`
	Name                string `json:"name"`
	SavingsAccountID    int64  `json:"savings_account_id"`
	SettlementAccountID *int64 `json:"settlement_account_id,omitempty"`
}

// Transaction is one history row; every row links to the entry of its group.
type Transaction struct {
	ID             int64               `json:"id"`
	MemberID       int64               `json:"member_id"`
	SavingsTypeID  int64               `json:"savings_type_id"`
	Kind           posting.SavingsKind `json:"transaction_type"`
	Amount         decimal.Decimal     `json:"amount"`
	Date           time.Time           `json:"transaction_date"`
	Note           string              `json:"note,omitempty"`
	JournalEntryID *int64              `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Balance is a member's position in one savings type.
type Balance struct {
	SavingsTypeID int64           `json:"savings_type_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Deposits      decimal.Decimal `json:"deposits"`
	Withdrawals   decimal.Decimal `json:"withdrawals"`
	Balance       decimal.Decimal `json:"balance"`
}

// SubmissionInput is one member submission of several savings items.
type SubmissionInput struct {
	MemberID   int64
	Kind       posting.SavingsKind
	Date       time.Time
	Items      []ItemInput
	Submission uuid.UUID
}

// ItemInput is one savings type and amount.
type ItemInput struct {
	SavingsTypeID int64
	Amount        decimal.Decimal
	Note          string
}

// Result lists what a submission produced.
type Result struct {
	Journals     []journals.JournalEntry `json:"journals"`
	Transactions []Transaction           `json:"transactions"`
}

// JournalsCreated returns the number of entries posted.
func (r Result) JournalsCreated() int {
	return len(r.Journals)
}
