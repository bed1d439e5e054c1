// Package posting derives balanced journal drafts from business events.
//
// Every source document type is one variant of Rule. A rule only derives the
// draft; journals.Post validates it generically and writes it inside the
// caller's transaction.
package posting

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Source modules recorded on derived entries.
const (
	ModuleInvoice      = "AR_INVOICE"
	ModuleBill         = "AP_BILL"
	ModuleReceipt      = "AR_PAYMENT"
	ModuleDisbursement = "AP_PAYMENT"
	ModuleCash         = "CASH"
	ModuleSavings      = "SAVINGS"
	ModuleDepreciation = "DEPRECIATION"
)

// ErrNothingToPost indicates a derivation with a zero total.
var ErrNothingToPost = fmt.Errorf("%w: nothing to post", shared.ErrValidation)

// Rule turns one business event into a balanced journal draft.
type Rule interface {
	Derive() (journals.EntryInput, error)
	rule()
}

// Apply derives the draft and posts it through tx.
func Apply(ctx context.Context, tx journals.TxRepository, r Rule) (journals.JournalEntry, error) {
	draft, err := r.Derive()
	if err != nil {
		return journals.JournalEntry{}, err
	}
	return journals.Post(ctx, tx, draft)
}

// SourceID returns the deterministic source reference for the given key parts.
func SourceID(parts ...any) uuid.UUID {
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = fmt.Sprint(p)
	}
	return uuid.NewSHA1(uuid.Nil, []byte(strings.Join(tokens, ":")))
}

var amountPrinter = message.NewPrinter(language.Indonesian)

// FormatAmount renders an amount with Indonesian digit grouping.
func FormatAmount(v decimal.Decimal) string {
	return amountPrinter.Sprintf("%.2f", v.Round(2).InexactFloat64())
}

func sumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Line is an account/amount pair on the non-control side of a document.
type Line struct {
	AccountID int64
	Amount    decimal.Decimal
}
