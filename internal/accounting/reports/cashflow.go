package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// CashFlow explains the change in cash-equivalent balances of one business.
// Each counter account's cash effect lands in its category's activity, or in
// OPERATING when the category names none.
func (e *Engine) CashFlow(ctx context.Context, businessID int64, from, to time.Time) (CashFlowStatement, error) {
	if err := checkRange(from, to); err != nil {
		return CashFlowStatement{}, err
	}
	from, to = journals.DateOnly(from), journals.DateOnly(to)
	chart, err := e.repo.Accounts(ctx, []int64{businessID})
	if err != nil {
		return CashFlowStatement{}, err
	}
	byID := make(map[int64]AccountInfo, len(chart))
	var cashIDs []int64
	for _, acc := range chart {
		byID[acc.ID] = acc
		if !acc.HasChildren && acc.Category != nil && acc.Category.IsCashEquivalent {
			cashIDs = append(cashIDs, acc.ID)
		}
	}
	if len(cashIDs) == 0 {
		return CashFlowStatement{}, &shared.ReportPreconditionError{
			Report: string(KindCashFlow),
			Reason: fmt.Sprintf("business %d has no cash-equivalent accounts", businessID),
		}
	}

	beginning, err := e.cashPosition(ctx, cashIDs, dayBefore(from))
	if err != nil {
		return CashFlowStatement{}, err
	}
	ending, err := e.cashPosition(ctx, cashIDs, to)
	if err != nil {
		return CashFlowStatement{}, err
	}
	counters, err := e.repo.CashCounterTotals(ctx, cashIDs, from, to)
	if err != nil {
		return CashFlowStatement{}, err
	}

	cf := CashFlowStatement{
		BusinessIDs: []int64{businessID},
		From:        from,
		To:          to,
		Beginning:   beginning,
		Ending:      ending,
		Operating:   CashFlowSection{Activity: accounts.ActivityOperating, Total: decimal.Zero},
		Investing:   CashFlowSection{Activity: accounts.ActivityInvesting, Total: decimal.Zero},
		Financing:   CashFlowSection{Activity: accounts.ActivityFinancing, Total: decimal.Zero},
	}
	ids := make([]int64, 0, len(counters))
	for id := range counters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return byID[ids[i]].Code < byID[ids[j]].Code })
	for _, id := range ids {
		effect := counters[id].Credit.Sub(counters[id].Debit)
		if effect.IsZero() {
			continue
		}
		acc, ok := byID[id]
		if !ok {
			acc = AccountInfo{ID: id, Code: fmt.Sprintf("#%d", id)}
		}
		if acc.Category == nil {
			return CashFlowStatement{}, &shared.ReportPreconditionError{
				Report: string(KindCashFlow),
				Reason: fmt.Sprintf("account %s (id %d) moves cash but has no category", acc.Code, acc.ID),
			}
		}
		cf.section(activityOf(acc)).add(Line{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Amount: effect})
	}
	cf.finish()
	return cf, nil
}

// ConsolidatedCashFlow merges cash flow statements by account code.
func (e *Engine) ConsolidatedCashFlow(ctx context.Context, businessIDs []int64, from, to time.Time) (Consolidated[CashFlowStatement], error) {
	return consolidate(ctx, e, businessIDs, func(ctx context.Context, id int64) (CashFlowStatement, error) {
		return e.CashFlow(ctx, id, from, to)
	}, MergeCashFlows)
}

// MergeCashFlows combines statements activity by activity.
func MergeCashFlows(parts []CashFlowStatement) CashFlowStatement {
	var out CashFlowStatement
	var operating, investing, financing []CashFlowSection
	for i, p := range parts {
		if i == 0 {
			out.From, out.To = p.From, p.To
		}
		out.BusinessIDs = append(out.BusinessIDs, p.BusinessIDs...)
		out.Beginning = out.Beginning.Add(p.Beginning)
		out.Ending = out.Ending.Add(p.Ending)
		operating = append(operating, p.Operating)
		investing = append(investing, p.Investing)
		financing = append(financing, p.Financing)
	}
	out.Operating = mergeCashSections(accounts.ActivityOperating, operating)
	out.Investing = mergeCashSections(accounts.ActivityInvesting, investing)
	out.Financing = mergeCashSections(accounts.ActivityFinancing, financing)
	out.finish()
	return out
}

func (e *Engine) cashPosition(ctx context.Context, cashIDs []int64, asOf time.Time) (decimal.Decimal, error) {
	totals, err := e.repo.Totals(ctx, cashIDs, nil, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, id := range cashIDs {
		sum = sum.Add(totals[id].Net())
	}
	return sum, nil
}

func (cf *CashFlowStatement) section(a accounts.CashFlowActivity) *CashFlowSection {
	switch a {
	case accounts.ActivityInvesting:
		return &cf.Investing
	case accounts.ActivityFinancing:
		return &cf.Financing
	default:
		return &cf.Operating
	}
}

func (cf *CashFlowStatement) finish() {
	cf.NetCashFlow = cf.Operating.Total.Add(cf.Investing.Total).Add(cf.Financing.Total)
	cf.CheckBalance = cf.Beginning.Add(cf.NetCashFlow).Sub(cf.Ending)
	cf.Balanced = cf.CheckBalance.Abs().LessThanOrEqual(shared.Tolerance)
}

func (s *CashFlowSection) add(l Line) {
	s.Lines = append(s.Lines, l)
	s.Total = s.Total.Add(l.Amount)
}

func activityOf(acc AccountInfo) accounts.CashFlowActivity {
	if acc.Category == nil || acc.Category.CashFlowActivity == nil {
		return accounts.ActivityOperating
	}
	return *acc.Category.CashFlowActivity
}

func mergeCashSections(a accounts.CashFlowActivity, parts []CashFlowSection) CashFlowSection {
	merged := make(map[string]*Line)
	var order []string
	for _, part := range parts {
		for _, l := range part.Lines {
			if cur, ok := merged[l.Code]; ok {
				cur.Amount = cur.Amount.Add(l.Amount)
				continue
			}
			copyLine := l
			copyLine.AccountID = 0
			merged[l.Code] = &copyLine
			order = append(order, l.Code)
		}
	}
	sort.Strings(order)
	out := CashFlowSection{Activity: a, Total: decimal.Zero}
	for _, code := range order {
		if l := *merged[code]; !l.Amount.IsZero() {
			out.add(l)
		}
	}
	return out
}
