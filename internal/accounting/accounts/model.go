package accounts

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NaturalBalance is the side on which accounts of this type increase.
func (t AccountType) NaturalBalance() shared.EntryType {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return shared.Debit
	default:
		return shared.Credit
	}
}

// CashFlowActivity buckets the counter side of cash movements.
type CashFlowActivity string

const (
	ActivityOperating CashFlowActivity = "OPERATING"
	ActivityInvesting CashFlowActivity = "INVESTING"
	ActivityFinancing CashFlowActivity = "FINANCING"
)

// Category is shared across businesses and drives sign conventions.
type Category struct {
	ID               int64             `json:"id"`
	Code             string            `json:"code"`
	Name             string            `json:"name"`
	AccountType      AccountType       `json:"account_type"`
	NormalBalance    shared.EntryType  `json:"normal_balance"`
	IsCashEquivalent bool              `json:"is_cash_equivalent"`
	CashFlowActivity *CashFlowActivity `json:"cash_flow_activity,omitempty"`
}

// Account models a chart of accounts node.
type Account struct {
	ID          int64     `json:"id"`
	BusinessID  int64     `json:"business_id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	CategoryID  *int64    `json:"category_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	HasChildren bool      `json:"has_children"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsPosting reports whether the account is a leaf that accepts journal lines.
func (a Account) IsPosting() bool {
	return !a.HasChildren
}

// IsHead reports whether the account aggregates others or sits at the top of the tree.
func (a Account) IsHead() bool {
	return a.HasChildren || a.ParentID == nil
}

// Kind filters accounts by their place in the tree.
type Kind string

const (
	KindHead Kind = "HEAD"
	KindPost Kind = "POST"
)

// ListFilter narrows listAccounts.
type ListFilter struct {
	BusinessID  int64
	Kind        Kind
	AccountType AccountType
	Search      string
}

// CreateInput carries the fields required to open an account.
type CreateInput struct {
	BusinessID int64
	Code       string
	Name       string
	ParentID   *int64
	CategoryID *int64
}

// UpdateInput carries optional changes. ClearParent moves the account to the root.
type UpdateInput struct {
	Code        *string
	Name        *string
	ParentID    *int64
	ClearParent bool
	CategoryID  *int64
	IsActive    *bool
}
