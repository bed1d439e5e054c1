package reports

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Ledger lists postings of an account within a range with the running
// balance. A head account yields the subsidiary ledger of all its leaves.
func (e *Engine) Ledger(ctx context.Context, accountID int64, from, to time.Time) (AccountLedger, error) {
	if err := checkRange(from, to); err != nil {
		return AccountLedger{}, err
	}
	from, to = journals.DateOnly(from), journals.DateOnly(to)
	acc, err := e.repo.Account(ctx, accountID)
	if err != nil {
		return AccountLedger{}, err
	}
	ids := []int64{acc.ID}
	if acc.HasChildren {
		chart, err := e.repo.Accounts(ctx, []int64{acc.BusinessID})
		if err != nil {
			return AccountLedger{}, err
		}
		ids = descendantLeaves(chart, acc.ID)
	}
	led, err := e.ledgerFor(ctx, ids, acc.NormalBalance(), from, to)
	if err != nil {
		return AccountLedger{}, err
	}
	led.AccountID, led.Code, led.Name, led.Subsidiary = acc.ID, acc.Code, acc.Name, acc.HasChildren
	return led, nil
}

// GeneralLedger builds one ledger per leaf code across the businesses, or all
// businesses when the set is empty. Codes with no opening balance and no
// activity are omitted.
func (e *Engine) GeneralLedger(ctx context.Context, businessIDs []int64, from, to time.Time) (GeneralLedger, error) {
	if err := checkRange(from, to); err != nil {
		return GeneralLedger{}, err
	}
	from, to = journals.DateOnly(from), journals.DateOnly(to)
	list, err := e.businesses(ctx, businessIDs)
	if err != nil {
		return GeneralLedger{}, err
	}
	scope := make([]int64, len(list))
	for i, b := range list {
		scope[i] = b.ID
	}
	chart, err := e.repo.Accounts(ctx, scope)
	if err != nil {
		return GeneralLedger{}, err
	}
	type group struct {
		name   string
		normal shared.EntryType
		ids    []int64
	}
	groups := make(map[string]*group)
	var codes []string
	for _, acc := range chart {
		if acc.HasChildren {
			continue
		}
		g, ok := groups[acc.Code]
		if !ok {
			g = &group{name: acc.Name, normal: acc.NormalBalance()}
			groups[acc.Code] = g
			codes = append(codes, acc.Code)
		}
		g.ids = append(g.ids, acc.ID)
	}
	sort.Strings(codes)

	gl := GeneralLedger{BusinessIDs: scope, From: from, To: to, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, code := range codes {
		g := groups[code]
		led, err := e.ledgerFor(ctx, g.ids, g.normal, from, to)
		if err != nil {
			return GeneralLedger{}, err
		}
		if led.Beginning.IsZero() && len(led.Lines) == 0 {
			continue
		}
		if len(g.ids) == 1 {
			led.AccountID = g.ids[0]
		}
		led.Code, led.Name = code, g.name
		gl.Accounts = append(gl.Accounts, led)
		gl.TotalDebit = gl.TotalDebit.Add(led.TotalDebit)
		gl.TotalCredit = gl.TotalCredit.Add(led.TotalCredit)
	}
	return gl, nil
}

func (e *Engine) ledgerFor(ctx context.Context, ids []int64, normal shared.EntryType, from, to time.Time) (AccountLedger, error) {
	led := AccountLedger{NormalBalance: normal, From: from, To: to, Beginning: decimal.Zero,
		TotalDebit: decimal.Zero, TotalCredit: decimal.Zero, Lines: []LedgerLine{}}
	opening, err := e.repo.Totals(ctx, ids, nil, dayBefore(from))
	if err != nil {
		return AccountLedger{}, err
	}
	for _, id := range ids {
		t := opening[id]
		led.Beginning = led.Beginning.Add(shared.SignedBalance(normal, t.Debit, t.Credit))
	}
	lines, err := e.repo.Lines(ctx, ids, from, to)
	if err != nil {
		return AccountLedger{}, err
	}
	running := led.Beginning
	for _, l := range lines {
		row := LedgerLine{
			Date:        l.Date,
			EntryID:     l.EntryID,
			BusinessID:  l.BusinessID,
			AccountID:   l.AccountID,
			Description: l.Description,
			Reference:   l.Reference,
			Debit:       decimal.Zero,
			Credit:      decimal.Zero,
		}
		if l.EntryType == shared.Debit {
			row.Debit = l.Amount
			led.TotalDebit = led.TotalDebit.Add(l.Amount)
		} else {
			row.Credit = l.Amount
			led.TotalCredit = led.TotalCredit.Add(l.Amount)
		}
		running = running.Add(shared.SignedBalance(normal, row.Debit, row.Credit))
		row.Balance = running
		led.Lines = append(led.Lines, row)
	}
	led.Ending = running
	return led, nil
}
