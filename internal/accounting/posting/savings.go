package posting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// SavingsKind is the direction of a member savings transaction.
type SavingsKind string

const (
	Deposit    SavingsKind = "DEPOSIT"
	Withdrawal SavingsKind = "WITHDRAWAL"
)

// SavingsTransaction posts the items of one submission that share a settlement account.
// Deposit: debit settlement for the total, credit each savings account.
// Withdrawal: debit each savings account, credit settlement.
type SavingsTransaction struct {
	BusinessID          int64
	MemberID            int64
	MemberNumber        string
	Kind                SavingsKind
	Date                time.Time
	SettlementAccountID int64
	Items               []Line
	Submission          uuid.UUID
}

func (SavingsTransaction) rule() {}

// Derive implements Rule.
func (r SavingsTransaction) Derive() (journals.EntryInput, error) {
	total := sumLines(r.Items)
	if !total.IsPositive() {
		return journals.EntryInput{}, ErrNothingToPost
	}
	var (
		lines []journals.LineInput
		label string
	)
	switch r.Kind {
	case Deposit:
		label = "Savings deposit"
		lines = append(lines, journals.LineInput{AccountID: r.SettlementAccountID, EntryType: shared.Debit, Amount: total})
		lines = append(lines, itemLines(r.Items, shared.Credit)...)
	case Withdrawal:
		label = "Savings withdrawal"
		lines = append(lines, itemLines(r.Items, shared.Debit)...)
		lines = append(lines, journals.LineInput{AccountID: r.SettlementAccountID, EntryType: shared.Credit, Amount: total})
	default:
		return journals.EntryInput{}, shared.Invalid("unknown savings transaction type %q", r.Kind)
	}
	in := journals.EntryInput{
		BusinessID:  r.BusinessID,
		Date:        r.Date,
		Description: fmt.Sprintf("%s member %s (%s)", label, r.MemberNumber, FormatAmount(total)),
		Reference:   r.MemberNumber,
		Lines:       lines,
	}
	if r.Submission != uuid.Nil {
		in.SourceModule = ModuleSavings
		in.SourceID = SourceID("SAVINGS", r.Submission, r.SettlementAccountID)
	}
	return in, nil
}
