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

// EquityChange reports, per equity leaf, the balance before from, the
// increases and decreases within the range, and the ending balance. Net
// profit appears as a current-earnings row.
func (e *Engine) EquityChange(ctx context.Context, businessID int64, from, to time.Time) (EquityChangeStatement, error) {
	if err := checkRange(from, to); err != nil {
		return EquityChangeStatement{}, err
	}
	from, to = journals.DateOnly(from), journals.DateOnly(to)
	scope := []int64{businessID}
	before, err := e.load(ctx, KindEquityChange, scope, nil, dayBefore(from))
	if err != nil {
		return EquityChangeStatement{}, err
	}
	period, err := e.load(ctx, KindEquityChange, scope, &from, to)
	if err != nil {
		return EquityChangeStatement{}, err
	}

	st := EquityChangeStatement{BusinessIDs: scope, From: from, To: to}
	for _, acc := range period.leaves(isEquity) {
		opening := before.totals[acc.ID]
		moved := period.totals[acc.ID]
		if opening.Debit.Equal(opening.Credit) && moved.IsZero() {
			continue
		}
		normal := acc.Category.NormalBalance
		line := EquityChangeLine{
			AccountID: acc.ID,
			Code:      acc.Code,
			Name:      acc.Name,
			Contra:    acc.Contra(),
			Beginning: shared.SignedBalance(normal, opening.Debit, opening.Credit),
			Increase:  moved.Credit,
			Decrease:  moved.Debit,
		}
		if normal == shared.Debit {
			line.Increase, line.Decrease = moved.Debit, moved.Credit
		}
		line.Ending = line.Beginning.Add(line.Increase).Sub(line.Decrease)
		st.Lines = append(st.Lines, line)
	}

	openingProfit := incomeFrom(before, scope, time.Time{}, dayBefore(from)).NetProfit
	periodProfit := incomeFrom(period, scope, from, to).NetProfit
	if !openingProfit.IsZero() || !periodProfit.IsZero() {
		earnings := EquityChangeLine{Name: currentEarningsName, Synthetic: true, Beginning: openingProfit,
			Increase: decimal.Zero, Decrease: decimal.Zero}
		if periodProfit.IsPositive() {
			earnings.Increase = periodProfit
		} else {
			earnings.Decrease = periodProfit.Neg()
		}
		earnings.Ending = earnings.Beginning.Add(earnings.Increase).Sub(earnings.Decrease)
		st.Lines = append(st.Lines, earnings)
	}
	st.finish()
	return st, nil
}

// ConsolidatedEquityChange merges equity statements by account code.
func (e *Engine) ConsolidatedEquityChange(ctx context.Context, businessIDs []int64, from, to time.Time) (Consolidated[EquityChangeStatement], error) {
	return consolidate(ctx, e, businessIDs, func(ctx context.Context, id int64) (EquityChangeStatement, error) {
		return e.EquityChange(ctx, id, from, to)
	}, MergeEquityChanges)
}

// MergeEquityChanges sums rows sharing a code.
func MergeEquityChanges(parts []EquityChangeStatement) EquityChangeStatement {
	var out EquityChangeStatement
	merged := make(map[string]*EquityChangeLine)
	var order []string
	for i, p := range parts {
		if i == 0 {
			out.From, out.To = p.From, p.To
		}
		out.BusinessIDs = append(out.BusinessIDs, p.BusinessIDs...)
		for _, l := range p.Lines {
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
			cur.Beginning = cur.Beginning.Add(l.Beginning)
			cur.Increase = cur.Increase.Add(l.Increase)
			cur.Decrease = cur.Decrease.Add(l.Decrease)
			cur.Ending = cur.Ending.Add(l.Ending)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := merged[order[i]], merged[order[j]]
		if a.Synthetic != b.Synthetic {
			return !a.Synthetic
		}
		return a.Code < b.Code
	})
	for _, key := range order {
		out.Lines = append(out.Lines, *merged[key])
	}
	out.finish()
	return out
}

func (st *EquityChangeStatement) finish() {
	st.TotalBeginning, st.TotalIncrease, st.TotalDecrease, st.TotalEnding = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range st.Lines {
		sign := decimal.NewFromInt(1)
		if l.Contra {
			sign = sign.Neg()
		}
		st.TotalBeginning = st.TotalBeginning.Add(l.Beginning.Mul(sign))
		st.TotalEnding = st.TotalEnding.Add(l.Ending.Mul(sign))
		if l.Contra {
			st.TotalIncrease = st.TotalIncrease.Add(l.Decrease)
			st.TotalDecrease = st.TotalDecrease.Add(l.Increase)
			continue
		}
		st.TotalIncrease = st.TotalIncrease.Add(l.Increase)
		st.TotalDecrease = st.TotalDecrease.Add(l.Decrease)
	}
	st.CheckBalance = st.TotalBeginning.Add(st.TotalIncrease).Sub(st.TotalDecrease).Sub(st.TotalEnding)
	st.Balanced = st.CheckBalance.Abs().LessThanOrEqual(shared.Tolerance)
}

func isEquity(acc AccountInfo) bool {
	return acc.Type() == accounts.AccountTypeEquity
}
