package reports

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TrialBalanceAccount is one leaf; its net balance sits in the debit or the credit column.
type TrialBalanceAccount struct {
	Code   string               `json:"code"`
	Name   string               `json:"name"`
	Type   accounts.AccountType `json:"type,omitempty"`
	Debit  decimal.Decimal      `json:"debit"`
	Credit decimal.Decimal      `json:"credit"`
}

// TrialBalanceGroup aggregates accounts sharing a code prefix.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// TrialBalance lists leaf balances as of a date.
type TrialBalance struct {
	BusinessIDs []int64             `json:"business_ids"`
	AsOf        time.Time           `json:"as_of"`
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
	Balanced    bool                `json:"balanced"`
}

// Kind implements Report.
func (TrialBalance) Kind() Kind { return KindTrialBalance }

// GroupKey returns the code prefix used for grouping: the part before the
// first separator, or the first character.
func GroupKey(code string) string {
	if idx := strings.IndexAny(code, "-."); idx > 0 {
		return code[:idx]
	}
	if len(code) >= 1 {
		return code[:1]
	}
	return code
}

// TrialBalance reports every leaf with a non-zero balance. Uncategorized
// leaves are listed too since no sign convention is needed.
func (e *Engine) TrialBalance(ctx context.Context, businessID int64, asOf time.Time) (TrialBalance, error) {
	if asOf.IsZero() {
		return TrialBalance{}, shared.Invalid("as_of date required")
	}
	asOf = journals.DateOnly(asOf)
	chart, err := e.repo.Accounts(ctx, []int64{businessID})
	if err != nil {
		return TrialBalance{}, err
	}
	var ids []int64
	for _, acc := range chart {
		if !acc.HasChildren {
			ids = append(ids, acc.ID)
		}
	}
	totals, err := e.repo.Totals(ctx, ids, nil, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	var rows []TrialBalanceAccount
	for _, acc := range chart {
		t, ok := totals[acc.ID]
		if acc.HasChildren || !ok {
			continue
		}
		if row, ok := trialRow(acc.Code, acc.Name, acc.Type(), t.Net()); ok {
			rows = append(rows, row)
		}
	}
	return BuildTrialBalance([]int64{businessID}, asOf, rows), nil
}

// ConsolidatedTrialBalance nets balances per code across businesses.
func (e *Engine) ConsolidatedTrialBalance(ctx context.Context, businessIDs []int64, asOf time.Time) (Consolidated[TrialBalance], error) {
	return consolidate(ctx, e, businessIDs, func(ctx context.Context, id int64) (TrialBalance, error) {
		return e.TrialBalance(ctx, id, asOf)
	}, MergeTrialBalances)
}

// MergeTrialBalances nets accounts sharing a code and regroups them.
func MergeTrialBalances(parts []TrialBalance) TrialBalance {
	var (
		ids   []int64
		asOf  time.Time
		net   = make(map[string]decimal.Decimal)
		meta  = make(map[string]TrialBalanceAccount)
		codes []string
	)
	for i, p := range parts {
		if i == 0 {
			asOf = p.AsOf
		}
		ids = append(ids, p.BusinessIDs...)
		for _, g := range p.Groups {
			for _, acc := range g.Accounts {
				if _, ok := meta[acc.Code]; !ok {
					meta[acc.Code] = acc
					codes = append(codes, acc.Code)
				}
				net[acc.Code] = net[acc.Code].Add(acc.Debit).Sub(acc.Credit)
			}
		}
	}
	var rows []TrialBalanceAccount
	for _, code := range codes {
		m := meta[code]
		if row, ok := trialRow(m.Code, m.Name, m.Type, net[code]); ok {
			rows = append(rows, row)
		}
	}
	return BuildTrialBalance(ids, asOf, rows)
}

// BuildTrialBalance groups rows by code prefix and totals both columns.
func BuildTrialBalance(businessIDs []int64, asOf time.Time, rows []TrialBalanceAccount) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, row := range rows {
		key := GroupKey(row.Code)
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{BusinessIDs: businessIDs, AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	result.Balanced = shared.Balanced(result.TotalDebit, result.TotalCredit)
	return result
}

func trialRow(code, name string, typ accounts.AccountType, net decimal.Decimal) (TrialBalanceAccount, bool) {
	if net.IsZero() {
		return TrialBalanceAccount{}, false
	}
	row := TrialBalanceAccount{Code: code, Name: name, Type: typ, Debit: decimal.Zero, Credit: decimal.Zero}
	if net.IsPositive() {
		row.Debit = net
	} else {
		row.Credit = net.Neg()
	}
	return row, true
}
