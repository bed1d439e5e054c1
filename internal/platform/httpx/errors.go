// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

type errorMapping struct {
	target error
	status int
	title  string
}

var mappings = []errorMapping{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrDuplicateCode, http.StatusConflict, "Duplicate Code"},
	{shared.ErrAccountInUse, http.StatusConflict, "Account In Use"},
	{shared.ErrSourceAlreadyLinked, http.StatusConflict, "Already Posted"},
	{shared.ErrDocumentSettled, http.StatusConflict, "Document Settled"},
	{shared.ErrDepreciationPosted, http.StatusConflict, "Depreciation Posted"},
	{shared.ErrAssetHasPostedDepreciation, http.StatusConflict, "Asset Has Posted Depreciation"},
	{shared.ErrUnbalanced, http.StatusUnprocessableEntity, "Unbalanced Entry"},
	{shared.ErrTooFewLines, http.StatusUnprocessableEntity, "Unbalanced Entry"},
	{shared.ErrNotPostingAccount, http.StatusUnprocessableEntity, "Not A Posting Account"},
	{shared.ErrCategoryMismatch, http.StatusUnprocessableEntity, "Category Mismatch"},
	{shared.ErrOverpayment, http.StatusUnprocessableEntity, "Overpayment"},
	{shared.ErrInvalidStatus, http.StatusUnprocessableEntity, "Invalid Status"},
	{shared.ErrInsufficientSavings, http.StatusUnprocessableEntity, "Insufficient Savings"},
	{shared.ErrReportPrecondition, http.StatusUnprocessableEntity, "Report Unavailable"},
	{shared.ErrMissingDefaultAccount, http.StatusPreconditionFailed, "Finance Settings Incomplete"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
}

// StatusFor returns the HTTP status and title for err.
func StatusFor(err error) (int, string) {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status, m.title
		}
	}
	return http.StatusInternalServerError, "Internal Error"
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	Problem(w, status, title, detail)
}
