package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
)

// Ratio names.
const (
	RatioDebt            = "debt_ratio"
	RatioDebtToEquity    = "debt_to_equity"
	RatioEquity          = "equity_ratio"
	RatioNetProfitMargin = "net_profit_margin"
	RatioReturnOnAssets  = "return_on_assets"
	RatioReturnOnEquity  = "return_on_equity"
	RatioCash            = "cash_ratio"
)

// FinancialRatios derives ratios for one business from its balance sheet at
// to and its income statement over from..to.
func (e *Engine) FinancialRatios(ctx context.Context, businessID int64, from, to time.Time) (FinancialRatios, error) {
	if err := checkRange(from, to); err != nil {
		return FinancialRatios{}, err
	}
	from, to = journals.DateOnly(from), journals.DateOnly(to)
	scope := []int64{businessID}
	position, err := e.load(ctx, KindFinancialRatios, scope, nil, to)
	if err != nil {
		return FinancialRatios{}, err
	}
	period, err := e.load(ctx, KindFinancialRatios, scope, &from, to)
	if err != nil {
		return FinancialRatios{}, err
	}
	bs := balanceSheetFrom(position, scope, to)
	is := incomeFrom(period, scope, from, to)
	return ratiosFrom(scope, from, to, bs, is, cashOf(position)), nil
}

// ConsolidatedFinancialRatios recomputes ratios from the merged totals;
// ratios themselves are never summed.
func (e *Engine) ConsolidatedFinancialRatios(ctx context.Context, businessIDs []int64, from, to time.Time) (Consolidated[FinancialRatios], error) {
	return consolidate(ctx, e, businessIDs, func(ctx context.Context, id int64) (FinancialRatios, error) {
		return e.FinancialRatios(ctx, id, from, to)
	}, MergeFinancialRatios)
}

// MergeFinancialRatios sums the underlying totals and recomputes every ratio.
func MergeFinancialRatios(parts []FinancialRatios) FinancialRatios {
	var (
		ids                         []int64
		from, to                    time.Time
		assets, liabilities, equity decimal.Decimal
		revenue, profit, cash       decimal.Decimal
	)
	for i, p := range parts {
		if i == 0 {
			from, to = p.From, p.To
		}
		ids = append(ids, p.BusinessIDs...)
		assets = assets.Add(p.TotalAssets)
		liabilities = liabilities.Add(p.TotalLiabilities)
		equity = equity.Add(p.TotalEquity)
		revenue = revenue.Add(p.Revenue)
		profit = profit.Add(p.NetProfit)
		cash = cash.Add(p.Cash)
	}
	return computeRatios(ids, from, to, assets, liabilities, equity, revenue, profit, cash)
}

func ratiosFrom(ids []int64, from, to time.Time, bs BalanceSheet, is IncomeStatement, cash decimal.Decimal) FinancialRatios {
	return computeRatios(ids, from, to, bs.Assets.Total, bs.Liabilities.Total, bs.Equity.Total, is.Revenue.Total, is.NetProfit, cash)
}

func computeRatios(ids []int64, from, to time.Time, assets, liabilities, equity, revenue, profit, cash decimal.Decimal) FinancialRatios {
	return FinancialRatios{
		BusinessIDs:      ids,
		From:             from,
		To:               to,
		TotalAssets:      assets,
		TotalLiabilities: liabilities,
		TotalEquity:      equity,
		Revenue:          revenue,
		NetProfit:        profit,
		Cash:             cash,
		Ratios: []Ratio{
			divide(RatioDebt, liabilities, assets, "total assets is zero"),
			divide(RatioDebtToEquity, liabilities, equity, "total equity is zero"),
			divide(RatioEquity, equity, assets, "total assets is zero"),
			divide(RatioNetProfitMargin, profit, revenue, "revenue is zero"),
			divide(RatioReturnOnAssets, profit, assets, "total assets is zero"),
			divide(RatioReturnOnEquity, profit, equity, "total equity is zero"),
			divide(RatioCash, cash, liabilities, "total liabilities is zero"),
		},
	}
}

func divide(name string, num, den decimal.Decimal, note string) Ratio {
	if den.IsZero() {
		return Ratio{Name: name, Note: note}
	}
	v := num.DivRound(den, 4)
	return Ratio{Name: name, Value: &v}
}

// cashOf sums cash-equivalent leaf balances.
func cashOf(snap snapshot) decimal.Decimal {
	sum := decimal.Zero
	for _, row := range snap.rows {
		if row.Account.Category.IsCashEquivalent {
			sum = sum.Add(row.Totals.Net())
		}
	}
	return sum
}
