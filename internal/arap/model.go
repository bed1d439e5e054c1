// Package arap tracks receivable invoices and payable bills from issuance
// through settlement.
package arap

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Kind distinguishes sales invoices from vendor bills.
type Kind string

const (
	KindInvoice Kind = "INVOICE"
	KindBill    Kind = "BILL"
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindBill
}

// IssuedStatus is the status a document takes once its accrual is posted.
func (k Kind) IssuedStatus() Status {
	if k == KindBill {
		return StatusSubmitted
	}
	return StatusSent
}

func (k Kind) side() posting.Side {
	if k == KindBill {
		return posting.Payable
	}
	return posting.Receivable
}

func (k Kind) label() string {
	return strings.ToLower(string(k))
}

// Status enumerates the document lifecycle.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusSent          Status = "SENT"
	StatusSubmitted     Status = "SUBMITTED"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusVoid          Status = "VOID"
)

// Open reports whether the document still accepts payments.
func (s Status) Open() bool {
	switch s {
	case StatusSent, StatusSubmitted, StatusPartiallyPaid:
		return true
	}
	return false
}

// Document is an invoice or a bill.
type Document struct {
	ID             int64           `json:"id"`
	Kind           Kind            `json:"kind"`
	BusinessID     int64           `json:"business_id"`
	ContactID      int64           `json:"contact_id"`
	Number         string          `json:"number"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Status         Status          `json:"status"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	Items          []Item          `json:"items"`
	Payments       []Payment       `json:"payments,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Outstanding returns the unpaid remainder.
func (d Document) Outstanding() decimal.Decimal {
	return d.TotalAmount.Sub(d.PaidAmount)
}

func (d Document) postingLines() []posting.Line {
	lines := make([]posting.Line, len(d.Items))
	for i, item := range d.Items {
		lines[i] = posting.Line{AccountID: item.AccountID, Amount: item.Amount}
	}
	return lines
}

// Item is one revenue (invoice) or expense (bill) line.
type Item struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Payment records cash received or paid against a document.
type Payment struct {
	ID               int64           `json:"id"`
	DocumentID       int64           `json:"document_id"`
	PaymentDate      time.Time       `json:"payment_date"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentAccountID int64           `json:"payment_account_id"`
	JournalEntryID   *int64          `json:"journal_entry_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DocumentInput creates a document. Draft documents skip the accrual.
type DocumentInput struct {
	Kind           Kind
	BusinessID     int64
	ContactID      int64
	Number         string
	IssueDate      time.Time
	DueDate        time.Time
	Items          []ItemInput
	Draft          bool
	InitialPayment *PaymentInput
}

// ItemInput is one requested item.
type ItemInput struct {
	AccountID   int64
	Description string
	Amount      decimal.Decimal
}

// PaymentInput applies a payment. PaymentAccountID falls back to the
// business default cash account.
type PaymentInput struct {
	Date             time.Time
	Amount           decimal.Decimal
	PaymentAccountID *int64
}

// PaymentCheck is the read-only verdict of ValidatePayment.
type PaymentCheck struct {
	OK          bool            `json:"ok"`
	Reason      string          `json:"reason,omitempty"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// ListFilter narrows document listings.
type ListFilter struct {
	Kind       Kind
	BusinessID int64
	ContactID  int64
	Status     Status
	Page       int
	PerPage    int
}

// AgingBucket sums outstanding amounts by days past due.
type AgingBucket struct {
	Current   decimal.Decimal `json:"current"`
	Bucket30  decimal.Decimal `json:"bucket_30"`
	Bucket60  decimal.Decimal `json:"bucket_60"`
	Bucket90  decimal.Decimal `json:"bucket_90"`
	Bucket120 decimal.Decimal `json:"bucket_120"`
}

// Total sums every bucket.
func (b AgingBucket) Total() decimal.Decimal {
	return b.Current.Add(b.Bucket30).Add(b.Bucket60).Add(b.Bucket90).Add(b.Bucket120)
}

func (b *AgingBucket) add(daysOverdue int, amount decimal.Decimal) {
	switch {
	case daysOverdue <= 0:
		b.Current = b.Current.Add(amount)
	case daysOverdue <= 30:
		b.Bucket30 = b.Bucket30.Add(amount)
	case daysOverdue <= 60:
		b.Bucket60 = b.Bucket60.Add(amount)
	case daysOverdue <= 90:
		b.Bucket90 = b.Bucket90.Add(amount)
	default:
		b.Bucket120 = b.Bucket120.Add(amount)
	}
}

func normalizeItems(in []ItemInput) ([]Item, decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, decimal.Zero, shared.Invalid("at least one item required")
	}
	items := make([]Item, len(in))
	total := decimal.Zero
	for i, item := range in {
		if item.AccountID <= 0 {
			return nil, decimal.Zero, shared.Invalid("item %d: account required", i+1)
		}
		amount := shared.Round2(item.Amount)
		if amount.IsNegative() {
			return nil, decimal.Zero, shared.Invalid("item %d: amount must not be negative", i+1)
		}
		items[i] = Item{AccountID: item.AccountID, Description: strings.TrimSpace(item.Description), Amount: amount}
		total = total.Add(amount)
	}
	return items, total, nil
}
