package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID int64
	EntryType shared.EntryType
	Amount    decimal.Decimal
}

// EntryInput groups fields required to create a journal entry.
// It is also the draft produced by posting rules.
type EntryInput struct {
	BusinessID   int64
	Date         time.Time
	Description  string
	Reference    string
	CreatedBy    int64
	SourceModule string
	SourceID     uuid.UUID
	Lines        []LineInput
}

// Validate ensures posting input meets minimum criteria.
func (in EntryInput) Validate() error {
	if in.BusinessID == 0 {
		return shared.Invalid("business required")
	}
	if in.Date.IsZero() {
		return shared.Invalid("entry date required")
	}
	if err := validateLines(in.Lines); err != nil {
		return err
	}
	if (in.SourceModule == "") != (in.SourceID == uuid.Nil) {
		return shared.Invalid("source module and source id go together")
	}
	return nil
}

// Normalized returns a copy with rounded amounts, trimmed text and a date-only entry date.
func (in EntryInput) Normalized() EntryInput {
	out := in
	out.Description = strings.TrimSpace(in.Description)
	out.Reference = strings.TrimSpace(in.Reference)
	out.Date = DateOnly(in.Date)
	out.Lines = normalizeLines(in.Lines)
	return out
}

// UpdateInput carries entry-level changes. A non-nil Lines replaces the whole detail set.
type UpdateInput struct {
	Date        *time.Time
	Description *string
	Reference   *string
	Lines       []LineInput
}

// ListFilter narrows listEntries.
type ListFilter struct {
	BusinessID int64
	From       *time.Time
	To         *time.Time
	AccountID  int64
	Search     string
	Page       int
	PerPage    int
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizeLines(lines []LineInput) []LineInput {
	out := make([]LineInput, len(lines))
	for i, line := range lines {
		out[i] = LineInput{
			AccountID: line.AccountID,
			EntryType: shared.EntryType(strings.ToUpper(string(line.EntryType))),
			Amount:    shared.Round2(line.Amount),
		}
	}
	return out
}

func validateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	var debit, credit decimal.Decimal
	for idx, line := range lines {
		if line.AccountID == 0 {
			return fmt.Errorf("%w: line %d missing account", shared.ErrValidation, idx)
		}
		if !line.Amount.IsPositive() {
			return fmt.Errorf("%w: line %d amount must be positive", shared.ErrValidation, idx)
		}
		switch line.EntryType {
		case shared.Debit:
			debit = debit.Add(line.Amount)
		case shared.Credit:
			credit = credit.Add(line.Amount)
		default:
			return fmt.Errorf("%w: line %d entry type %q", shared.ErrValidation, idx, line.EntryType)
		}
	}
	if !shared.Balanced(debit, credit) {
		return &shared.UnbalancedEntryError{Debit: debit, Credit: credit}
	}
	return nil
}
