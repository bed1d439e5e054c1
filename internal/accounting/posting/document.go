package posting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Invoice accrues a receivable: debit AR for the total, credit each item.
type Invoice struct {
	BusinessID          int64
	DocumentID          int64
	Number              string
	Date                time.Time
	ReceivableAccountID int64
	Items               []Line
}

func (Invoice) rule() {}

// Derive implements Rule.
func (r Invoice) Derive() (journals.EntryInput, error) {
	total := sumLines(r.Items)
	if !total.IsPositive() {
		return journals.EntryInput{}, ErrNothingToPost
	}
	lines := []journals.LineInput{{AccountID: r.ReceivableAccountID, EntryType: shared.Debit, Amount: total}}
	lines = append(lines, itemLines(r.Items, shared.Credit)...)
	return journals.EntryInput{
		BusinessID:   r.BusinessID,
		Date:         r.Date,
		Description:  fmt.Sprintf("Invoice %s (%s)", r.Number, FormatAmount(total)),
		Reference:    r.Number,
		SourceModule: ModuleInvoice,
		SourceID:     SourceID("INVOICE", r.DocumentID),
		Lines:        lines,
	}, nil
}

// Bill accrues a payable: debit each item, credit AP for the total.
type Bill struct {
	BusinessID       int64
	DocumentID       int64
	Number           string
	Date             time.Time
	PayableAccountID int64
	Items            []Line
}

func (Bill) rule() {}

// Derive implements Rule.
func (r Bill) Derive() (journals.EntryInput, error) {
	total := sumLines(r.Items)
	if !total.IsPositive() {
		return journals.EntryInput{}, ErrNothingToPost
	}
	lines := itemLines(r.Items, shared.Debit)
	lines = append(lines, journals.LineInput{AccountID: r.PayableAccountID, EntryType: shared.Credit, Amount: total})
	return journals.EntryInput{
		BusinessID:   r.BusinessID,
		Date:         r.Date,
		Description:  fmt.Sprintf("Bill %s (%s)", r.Number, FormatAmount(total)),
		Reference:    r.Number,
		SourceModule: ModuleBill,
		SourceID:     SourceID("BILL", r.DocumentID),
		Lines:        lines,
	}, nil
}

// Side tells whether a payment settles a receivable or a payable.
type Side string

const (
	Receivable Side = "RECEIVABLE"
	Payable    Side = "PAYABLE"
)

// Payment moves cash against a document's control account.
// Receivable: debit cash, credit AR. Payable: debit AP, credit cash.
type Payment struct {
	Side             Side
	BusinessID       int64
	DocumentID       int64
	PaymentID        int64
	Number           string
	Date             time.Time
	ControlAccountID int64
	CashAccountID    int64
	Amount           decimal.Decimal
}

func (Payment) rule() {}

// Derive implements Rule.
func (r Payment) Derive() (journals.EntryInput, error) {
	if !r.Amount.IsPositive() {
		return journals.EntryInput{}, ErrNothingToPost
	}
	in := journals.EntryInput{
		BusinessID: r.BusinessID,
		Date:       r.Date,
		Reference:  r.Number,
	}
	switch r.Side {
	case Receivable:
		in.Description = fmt.Sprintf("Receipt for invoice %s (%s)", r.Number, FormatAmount(r.Amount))
		in.SourceModule = ModuleReceipt
		in.SourceID = SourceID("INVOICE", r.DocumentID, "PAYMENT", r.PaymentID)
		in.Lines = []journals.LineInput{
			{AccountID: r.CashAccountID, EntryType: shared.Debit, Amount: r.Amount},
			{AccountID: r.ControlAccountID, EntryType: shared.Credit, Amount: r.Amount},
		}
	case Payable:
		in.Description = fmt.Sprintf("Payment for bill %s (%s)", r.Number, FormatAmount(r.Amount))
		in.SourceModule = ModuleDisbursement
		in.SourceID = SourceID("BILL", r.DocumentID, "PAYMENT", r.PaymentID)
		in.Lines = []journals.LineInput{
			{AccountID: r.ControlAccountID, EntryType: shared.Debit, Amount: r.Amount},
			{AccountID: r.CashAccountID, EntryType: shared.Credit, Amount: r.Amount},
		}
	default:
		return journals.EntryInput{}, shared.Invalid("unknown payment side %q", r.Side)
	}
	return in, nil
}

func itemLines(items []Line, side shared.EntryType) []journals.LineInput {
	out := make([]journals.LineInput, 0, len(items))
	for _, item := range items {
		if item.Amount.IsZero() {
			continue
		}
		out = append(out, journals.LineInput{AccountID: item.AccountID, EntryType: side, Amount: item.Amount})
	}
	return out
}
