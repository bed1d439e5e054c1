package reports

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const currentEarningsName = "Current earnings"

// IncomeStatement reports revenue and expense movement of one business.
func (e *Engine) IncomeStatement(ctx context.Context, businessID int64, from, to time.Time) (IncomeStatement, error) {
	if err := checkRange(from, to); err != nil {
		return IncomeStatement{}, err
	}
	from, to = journals.DateOnly(from), journals.DateOnly(to)
	snap, err := e.load(ctx, KindIncomeStatement, []int64{businessID}, &from, to)
	if err != nil {
		return IncomeStatement{}, err
	}
	return incomeFrom(snap, []int64{businessID}, from, to), nil
}

// ConsolidatedIncomeStatement merges income statements by account code.
func (e *Engine) ConsolidatedIncomeStatement(ctx context.Context, businessIDs []int64, from, to time.Time) (Consolidated[IncomeStatement], error) {
	return consolidate(ctx, e, businessIDs, func(ctx context.Context, id int64) (IncomeStatement, error) {
		return e.IncomeStatement(ctx, id, from, to)
	}, MergeIncomeStatements)
}

func incomeFrom(snap snapshot, businessIDs []int64, from, to time.Time) IncomeStatement {
	is := IncomeStatement{
		BusinessIDs: businessIDs,
		From:        from,
		To:          to,
		Revenue:     buildSection(accounts.AccountTypeRevenue, snap.ofType(accounts.AccountTypeRevenue)),
		Expenses:    buildSection(accounts.AccountTypeExpense, snap.ofType(accounts.AccountTypeExpense)),
	}
	is.NetProfit = is.Revenue.Total.Sub(is.Expenses.Total)
	return is
}

// BalanceSheet reports positions of one business as of a date.
func (e *Engine) BalanceSheet(ctx context.Context, businessID int64, asOf time.Time) (BalanceSheet, error) {
	if asOf.IsZero() {
		return BalanceSheet{}, shared.Invalid("as_of date required")
	}
	asOf = journals.DateOnly(asOf)
	snap, err := e.load(ctx, KindBalanceSheet, []int64{businessID}, nil, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	return balanceSheetFrom(snap, []int64{businessID}, asOf), nil
}

// ConsolidatedBalanceSheet merges balance sheets by account code.
func (e *Engine) ConsolidatedBalanceSheet(ctx context.Context, businessIDs []int64, asOf time.Time) (Consolidated[BalanceSheet], error) {
	return consolidate(ctx, e, businessIDs, func(ctx context.Context, id int64) (BalanceSheet, error) {
		return e.BalanceSheet(ctx, id, asOf)
	}, MergeBalanceSheets)
}

func balanceSheetFrom(snap snapshot, businessIDs []int64, asOf time.Time) BalanceSheet {
	earnings := incomeFrom(snap, businessIDs, time.Time{}, asOf).NetProfit
	bs := BalanceSheet{
		BusinessIDs:     businessIDs,
		AsOf:            asOf,
		Assets:          buildSection(accounts.AccountTypeAsset, snap.ofType(accounts.AccountTypeAsset)),
		Liabilities:     buildSection(accounts.AccountTypeLiability, snap.ofType(accounts.AccountTypeLiability)),
		Equity:          buildSection(accounts.AccountTypeEquity, snap.ofType(accounts.AccountTypeEquity)),
		CurrentEarnings: earnings,
	}
	if !earnings.IsZero() {
		bs.Equity.Lines = append(bs.Equity.Lines, Line{Name: currentEarningsName, Amount: earnings, Synthetic: true})
		bs.Equity.Total = bs.Equity.Total.Add(earnings)
	}
	bs.finish()
	return bs
}

func (bs *BalanceSheet) finish() {
	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total)
	bs.CheckBalance = bs.Assets.Total.Sub(bs.TotalLiabilitiesAndEquity)
	bs.Balanced = bs.CheckBalance.Abs().LessThanOrEqual(shared.Tolerance)
}

// MergeIncomeStatements combines statements line by line on account code.
func MergeIncomeStatements(parts []IncomeStatement) IncomeStatement {
	var out IncomeStatement
	revenue := make([]Section, len(parts))
	expenses := make([]Section, len(parts))
	for i, p := range parts {
		if i == 0 {
			out.From, out.To = p.From, p.To
		}
		out.BusinessIDs = append(out.BusinessIDs, p.BusinessIDs...)
		revenue[i], expenses[i] = p.Revenue, p.Expenses
	}
	out.Revenue = mergeSections(accounts.AccountTypeRevenue, revenue)
	out.Expenses = mergeSections(accounts.AccountTypeExpense, expenses)
	out.NetProfit = out.Revenue.Total.Sub(out.Expenses.Total)
	return out
}

// MergeBalanceSheets combines balance sheets line by line on account code.
func MergeBalanceSheets(parts []BalanceSheet) BalanceSheet {
	var out BalanceSheet
	assets := make([]Section, len(parts))
	liabilities := make([]Section, len(parts))
	equity := make([]Section, len(parts))
	for i, p := range parts {
		if i == 0 {
			out.AsOf = p.AsOf
		}
		out.BusinessIDs = append(out.BusinessIDs, p.BusinessIDs...)
		out.CurrentEarnings = out.CurrentEarnings.Add(p.CurrentEarnings)
		assets[i], liabilities[i], equity[i] = p.Assets, p.Liabilities, p.Equity
	}
	out.Assets = mergeSections(accounts.AccountTypeAsset, assets)
	out.Liabilities = mergeSections(accounts.AccountTypeLiability, liabilities)
	out.Equity = mergeSections(accounts.AccountTypeEquity, equity)
	out.finish()
	return out
}

// buildSection turns balance rows into lines; contra accounts reduce the total.
func buildSection(t accounts.AccountType, rows []balanceRow) Section {
	s := Section{Type: t, Lines: make([]Line, 0, len(rows)), Total: decimal.Zero}
	for _, row := range rows {
		l := row.line()
		s.Lines = append(s.Lines, l)
		s.Total = s.Total.Add(l.Contribution())
	}
	return s
}

// mergeSections sums lines sharing a code; synthetic lines merge by name.
// Lines that net to zero are dropped.
func mergeSections(t accounts.AccountType, parts []Section) Section {
	merged := make(map[string]*Line)
	var order []string
	for _, part := range parts {
		for _, l := range part.Lines {
			key := l.Code
			if l.Synthetic {
				key = "~" + l.Name
			}
			cur, ok := merged[key]
			if !ok {
				copyLine := l
				copyLine.AccountID = 0
				merged[key] = &copyLine
				order = append(order, key)
				continue
			}
			if cur.Contra == l.Contra {
				cur.Amount = cur.Amount.Add(l.Amount)
			} else {
				cur.Amount = cur.Amount.Sub(l.Amount)
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := merged[order[i]], merged[order[j]]
		if a.Synthetic != b.Synthetic {
			return !a.Synthetic
		}
		return a.Code < b.Code
	})
	s := Section{Type: t, Lines: make([]Line, 0, len(order)), Total: decimal.Zero}
	for _, key := range order {
		l := *merged[key]
		if l.Amount.IsZero() {
			continue
		}
		s.Lines = append(s.Lines, l)
		s.Total = s.Total.Add(l.Contribution())
	}
	return s
}
