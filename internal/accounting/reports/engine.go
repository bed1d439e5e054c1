package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Engine computes balances and statements straight from postings.
type Engine struct {
	repo        Repository
	concurrency int
}

// NewEngine constructs the report engine.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, concurrency: 4}
}

// WithConcurrency bounds how many businesses a consolidation computes at once.
func (e *Engine) WithConcurrency(n int) *Engine {
	if n > 0 {
		e.concurrency = n
	}
	return e
}

// balanceRow is a categorized leaf with a non-zero balance.
type balanceRow struct {
	Account AccountInfo
	Totals  Totals
	Balance decimal.Decimal
}

func (r balanceRow) line() Line {
	return Line{AccountID: r.Account.ID, Code: r.Account.Code, Name: r.Account.Name, Amount: r.Balance, Contra: r.Account.Contra()}
}

// snapshot holds the leaf totals of a business chart over one window.
type snapshot struct {
	accounts []AccountInfo
	byID     map[int64]AccountInfo
	totals   map[int64]Totals
	rows     []balanceRow
}

func (s snapshot) ofType(t accounts.AccountType) []balanceRow {
	var out []balanceRow
	for _, row := range s.rows {
		if row.Account.Type() == t {
			out = append(out, row)
		}
	}
	return out
}

func (s snapshot) leaves(keep func(AccountInfo) bool) []AccountInfo {
	var out []AccountInfo
	for _, acc := range s.accounts {
		if !acc.HasChildren && keep(acc) {
			out = append(out, acc)
		}
	}
	return out
}

// load walks every leaf of the businesses once. A leaf without a category
// that carries a balance fails the report.
func (e *Engine) load(ctx context.Context, report Kind, businessIDs []int64, from *time.Time, to time.Time) (snapshot, error) {
	accs, err := e.repo.Accounts(ctx, businessIDs)
	if err != nil {
		return snapshot{}, err
	}
	snap := snapshot{accounts: accs, byID: make(map[int64]AccountInfo, len(accs))}
	var ids []int64
	for _, acc := range accs {
		snap.byID[acc.ID] = acc
		if !acc.HasChildren {
			ids = append(ids, acc.ID)
		}
	}
	if snap.totals, err = e.repo.Totals(ctx, ids, from, to); err != nil {
		return snapshot{}, err
	}
	for _, acc := range accs {
		if acc.HasChildren {
			continue
		}
		t, ok := snap.totals[acc.ID]
		if !ok {
			continue
		}
		if acc.Category == nil {
			if !t.Debit.Equal(t.Credit) {
				return snapshot{}, &shared.ReportPreconditionError{
					Report: string(report),
					Reason: fmt.Sprintf("account %s (id %d) has a balance but no category", acc.Code, acc.ID),
				}
			}
			continue
		}
		bal := shared.SignedBalance(acc.Category.NormalBalance, t.Debit, t.Credit)
		if bal.IsZero() {
			continue
		}
		snap.rows = append(snap.rows, balanceRow{Account: acc, Totals: t, Balance: bal})
	}
	sort.SliceStable(snap.rows, func(i, j int) bool {
		a, b := snap.rows[i].Account, snap.rows[j].Account
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.BusinessID < b.BusinessID
	})
	return snap, nil
}

// BalanceAsOf returns the balance of an account. For a head account the
// balances of all its descendant leaves are summed under the head's normal side.
func (e *Engine) BalanceAsOf(ctx context.Context, accountID int64, asOf time.Time) (AccountBalance, error) {
	asOf = journals.DateOnly(asOf)
	acc, err := e.repo.Account(ctx, accountID)
	if err != nil {
		return AccountBalance{}, err
	}
	ids := []int64{acc.ID}
	if acc.HasChildren {
		chart, err := e.repo.Accounts(ctx, []int64{acc.BusinessID})
		if err != nil {
			return AccountBalance{}, err
		}
		ids = descendantLeaves(chart, acc.ID)
	}
	return e.balanceOf(ctx, acc.Code, acc.Name, acc.ID, []int64{acc.BusinessID}, acc.NormalBalance(), ids, asOf)
}

// CodeBalanceAsOf sums the leaves carrying code across businesses; an empty
// set means every business.
func (e *Engine) CodeBalanceAsOf(ctx context.Context, code string, businessIDs []int64, asOf time.Time) (AccountBalance, error) {
	asOf = journals.DateOnly(asOf)
	chart, err := e.repo.Accounts(ctx, businessIDs)
	if err != nil {
		return AccountBalance{}, err
	}
	var (
		ids    []int64
		name   string
		normal shared.EntryType
		scope  []int64
	)
	for _, acc := range chart {
		if acc.Code != code || acc.HasChildren {
			continue
		}
		if name == "" {
			name, normal = acc.Name, acc.NormalBalance()
		}
		ids = append(ids, acc.ID)
		scope = appendUnique(scope, acc.BusinessID)
	}
	if len(ids) == 0 {
		return AccountBalance{}, fmt.Errorf("%w: account code %q", shared.ErrNotFound, code)
	}
	return e.balanceOf(ctx, code, name, 0, scope, normal, ids, asOf)
}

func (e *Engine) balanceOf(ctx context.Context, code, name string, accountID int64, scope []int64, normal shared.EntryType, ids []int64, asOf time.Time) (AccountBalance, error) {
	totals, err := e.repo.Totals(ctx, ids, nil, asOf)
	if err != nil {
		return AccountBalance{}, err
	}
	var sum Totals
	for _, id := range ids {
		sum = sum.Add(totals[id])
	}
	return AccountBalance{
		AccountID:     accountID,
		Code:          code,
		Name:          name,
		BusinessIDs:   scope,
		AsOf:          asOf,
		NormalBalance: normal,
		Debit:         sum.Debit,
		Credit:        sum.Credit,
		Balance:       shared.SignedBalance(normal, sum.Debit, sum.Credit),
	}, nil
}

// Businesses lists every business the ledger knows.
func (e *Engine) Businesses(ctx context.Context) ([]Business, error) {
	return e.repo.Businesses(ctx)
}

// businesses resolves an id set; empty means every business.
func (e *Engine) businesses(ctx context.Context, ids []int64) ([]Business, error) {
	all, err := e.repo.Businesses(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[int64]Business, len(all))
	for _, b := range all {
		byID[b.ID] = b
	}
	out := make([]Business, 0, len(ids))
	for _, id := range ids {
		b, ok := byID[id]
		if !ok {
			return nil, shared.NotFound("business", id)
		}
		out = append(out, b)
	}
	return out, nil
}

// consolidate builds one report per business concurrently and merges them.
func consolidate[T Report](ctx context.Context, e *Engine, businessIDs []int64,
	build func(context.Context, int64) (T, error), merge func([]T) T) (Consolidated[T], error) {
	list, err := e.businesses(ctx, businessIDs)
	if err != nil {
		return Consolidated[T]{}, err
	}
	parts := make([]T, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, b := range list {
		i, b := i, b
		g.Go(func() error {
			report, err := build(gctx, b.ID)
			if err != nil {
				return fmt.Errorf("business %d: %w", b.ID, err)
			}
			parts[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Consolidated[T]{}, err
	}
	out := Consolidated[T]{Total: merge(parts), Businesses: make([]BusinessReport[T], len(list))}
	for i, b := range list {
		out.Businesses[i] = BusinessReport[T]{Business: b, Report: parts[i]}
	}
	return out, nil
}

func descendantLeaves(chart []AccountInfo, headID int64) []int64 {
	children := make(map[int64][]AccountInfo)
	for _, acc := range chart {
		if acc.ParentID != nil {
			children[*acc.ParentID] = append(children[*acc.ParentID], acc)
		}
	}
	var (
		out   []int64
		queue = []int64{headID}
	)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			if child.HasChildren {
				queue = append(queue, child.ID)
				continue
			}
			out = append(out, child.ID)
		}
	}
	return out
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

func dayBefore(t time.Time) time.Time {
	return journals.DateOnly(t).AddDate(0, 0, -1)
}

func checkRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return shared.Invalid("from and to dates required")
	}
	if to.Before(from) {
		return shared.Invalid("to %s is before from %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	return nil
}
