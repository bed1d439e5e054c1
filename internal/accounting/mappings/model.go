package mappings

import "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"

// Settings keys reported by MissingDefaultAccountError.
const (
	KeyReceivable = "accounts_receivable"
	KeyPayable    = "accounts_payable"
	KeyCash       = "cash"
)

// BusinessFinanceSettings holds the default accounts posting rules rely on.
// It is resolved by the caller and passed into every posting call.
type BusinessFinanceSettings struct {
	BusinessID          int64  `json:"business_id"`
	ReceivableAccountID *int64 `json:"receivable_account_id,omitempty"`
	PayableAccountID    *int64 `json:"payable_account_id,omitempty"`
	CashAccountID       *int64 `json:"cash_account_id,omitempty"`
}

// Receivable returns the default accounts-receivable account.
func (s BusinessFinanceSettings) Receivable() (int64, error) {
	return s.require(s.ReceivableAccountID, KeyReceivable)
}

// Payable returns the default accounts-payable account.
func (s BusinessFinanceSettings) Payable() (int64, error) {
	return s.require(s.PayableAccountID, KeyPayable)
}

// Cash returns the default cash account.
func (s BusinessFinanceSettings) Cash() (int64, error) {
	return s.require(s.CashAccountID, KeyCash)
}

// CashOr returns override when set, else the default cash account.
func (s BusinessFinanceSettings) CashOr(override *int64) (int64, error) {
	if override != nil && *override != 0 {
		return *override, nil
	}
	return s.Cash()
}

func (s BusinessFinanceSettings) require(id *int64, key string) (int64, error) {
	if id == nil || *id == 0 {
		return 0, &shared.MissingDefaultAccountError{BusinessID: s.BusinessID, Key: key}
	}
	return *id, nil
}
