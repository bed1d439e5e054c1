package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrNotPostingAccount indicates a line targets a head account or an account of another business.
	ErrNotPostingAccount = errors.New("accounting: account does not accept postings")
	// ErrDuplicateCode indicates an account code already exists in the business.
	ErrDuplicateCode = errors.New("accounting: account code already used")
	// ErrAccountInUse indicates the account is referenced and cannot change shape.
	ErrAccountInUse = errors.New("accounting: account in use")
	// ErrCategoryMismatch indicates a child category differs from its parent.
	ErrCategoryMismatch = errors.New("accounting: category does not match parent")
	// ErrOverpayment indicates a payment would exceed the document total.
	ErrOverpayment = errors.New("accounting: payment exceeds outstanding amount")
	// ErrDocumentSettled indicates the document is already paid.
	ErrDocumentSettled = errors.New("accounting: document already settled")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrAssetHasPostedDepreciation blocks destructive changes on depreciated assets.
	ErrAssetHasPostedDepreciation = errors.New("accounting: asset has posted depreciation")
	// ErrDepreciationPosted indicates the schedule row already produced an entry.
	ErrDepreciationPosted = errors.New("accounting: depreciation already posted")
	// ErrMissingDefaultAccount indicates business finance settings are incomplete.
	ErrMissingDefaultAccount = errors.New("accounting: default account not configured")
	// ErrInsufficientSavings indicates a withdrawal larger than the member balance.
	ErrInsufficientSavings = errors.New("accounting: insufficient savings balance")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("accounting: not found")
	// ErrReportPrecondition indicates the ledger data cannot support the report.
	ErrReportPrecondition = errors.New("accounting: report precondition failed")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("accounting: validation failed")
)

// Invalid builds a validation error carrying a readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// UnbalancedEntryError reports the totals of a rejected entry.
type UnbalancedEntryError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("%s (debit %s, credit %s)", ErrUnbalanced, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalanced }

// DuplicateCodeError names the conflicting account code.
type DuplicateCodeError struct {
	BusinessID int64
	Code       string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("%s: %q in business %d", ErrDuplicateCode, e.Code, e.BusinessID)
}

func (e *DuplicateCodeError) Unwrap() error { return ErrDuplicateCode }

// AccountInUseError explains why an account cannot be removed or re-shaped.
type AccountInUseError struct {
	AccountID int64
	Reason    string
}

func (e *AccountInUseError) Error() string {
	return fmt.Sprintf("%s: account %d %s", ErrAccountInUse, e.AccountID, e.Reason)
}

func (e *AccountInUseError) Unwrap() error { return ErrAccountInUse }

// CategoryMismatchError carries the conflicting category ids.
type CategoryMismatchError struct {
	ParentID         int64
	ParentCategoryID int64
	CategoryID       int64
}

func (e *CategoryMismatchError) Error() string {
	return fmt.Sprintf("%s: parent %d has category %d, got %d", ErrCategoryMismatch, e.ParentID, e.ParentCategoryID, e.CategoryID)
}

func (e *CategoryMismatchError) Unwrap() error { return ErrCategoryMismatch }

// OverpaymentError describes the rejected payment against the document state.
type OverpaymentError struct {
	DocumentID int64
	Total      decimal.Decimal
	Paid       decimal.Decimal
	Amount     decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("%s: document %d total %s paid %s payment %s", ErrOverpayment, e.DocumentID,
		e.Total.StringFixed(2), e.Paid.StringFixed(2), e.Amount.StringFixed(2))
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// Outstanding returns the amount still payable on the document.
func (e *OverpaymentError) Outstanding() decimal.Decimal {
	return e.Total.Sub(e.Paid)
}

// DocumentAlreadySettledError is returned when paying a PAID document. It
// matches both ErrDocumentSettled and ErrOverpayment: nothing is outstanding.
type DocumentAlreadySettledError struct {
	Kind       string
	DocumentID int64
}

func (e *DocumentAlreadySettledError) Error() string {
	return fmt.Sprintf("%s: %s %d", ErrDocumentSettled, e.Kind, e.DocumentID)
}

func (e *DocumentAlreadySettledError) Unwrap() []error {
	return []error{ErrDocumentSettled, ErrOverpayment}
}

// AssetHasPostedDepreciationError blocks schedule regeneration and asset deletion.
type AssetHasPostedDepreciationError struct {
	AssetID int64
	Posted  int
}

func (e *AssetHasPostedDepreciationError) Error() string {
	return fmt.Sprintf("%s: asset %d has %d posted rows", ErrAssetHasPostedDepreciation, e.AssetID, e.Posted)
}

func (e *AssetHasPostedDepreciationError) Unwrap() error { return ErrAssetHasPostedDepreciation }

// MissingDefaultAccountError names the unresolved settings key.
type MissingDefaultAccountError struct {
	BusinessID int64
	Key        string
}

func (e *MissingDefaultAccountError) Error() string {
	return fmt.Sprintf("%s: %s for business %d", ErrMissingDefaultAccount, e.Key, e.BusinessID)
}

func (e *MissingDefaultAccountError) Unwrap() error { return ErrMissingDefaultAccount }

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %d", ErrNotFound, e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand for a *NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ReportPreconditionError explains why a report cannot be produced.
type ReportPreconditionError struct {
	Report string
	Reason string
}

func (e *ReportPreconditionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrReportPrecondition, e.Report, e.Reason)
}

func (e *ReportPreconditionError) Unwrap() error { return ErrReportPrecondition }
