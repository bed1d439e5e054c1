package reports_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type countingObserver struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (o *countingObserver) CacheHit(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits[kind]++
}

func (o *countingObserver) CacheMiss(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses[kind]++
}

func newTestService(t *testing.T, store *ledgertest.Store) (*reports.Service, *countingObserver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	obs := newCountingObserver()
	cache := reports.NewCache(client, time.Minute).WithObserver(obs)
	return reports.NewService(reports.NewEngine(store), cache, nil), obs, mr
}

func TestServiceCachesUntilLedgerChanges(t *testing.T) {
	store := activity(t)
	svc, obs, _ := newTestService(t, store)
	ctx := context.Background()
	q := reports.Query{Kind: reports.KindBalanceSheet, BusinessIDs: []int64{ledgertest.BusinessMain}, AsOf: day(1, 31)}

	first, err := svc.Build(ctx, q)
	require.NoError(t, err)
	second, err := svc.Build(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1, obs.misses[string(reports.KindBalanceSheet)])
	require.Equal(t, 1, obs.hits[string(reports.KindBalanceSheet)])
	requireAmount(t, first.(reports.BalanceSheet).Assets.Total.String(), second.(reports.BalanceSheet).Assets.Total)

	post(t, store, ledgertest.BusinessMain, day(1, 30), "late sale", dr(ledgertest.Cash, "1000"), cr(ledgertest.Revenue, "1000"))
	stale, err := svc.Build(ctx, q)
	require.NoError(t, err)
	requireAmount(t, "10300000", stale.(reports.BalanceSheet).Assets.Total)

	svc.LedgerChanged(ctx, "MANUAL", 1)
	fresh, err := svc.Build(ctx, q)
	require.NoError(t, err)
	requireAmount(t, "10301000", fresh.(reports.BalanceSheet).Assets.Total)
	require.Equal(t, 2, obs.misses[string(reports.KindBalanceSheet)])
}

func TestServiceRebuildsAfterChartEdit(t *testing.T) {
	store := activity(t)
	svc, obs, _ := newTestService(t, store)
	chart := accounts.NewService(store.Chart(), nil, svc, nil)
	ctx := context.Background()
	q := reports.Query{Kind: reports.KindIncomeStatement, BusinessIDs: []int64{ledgertest.BusinessMain}, From: day(1, 1), To: day(1, 31)}

	before, err := svc.Build(ctx, q)
	require.NoError(t, err)
	requireAmount(t, "400000", before.(reports.IncomeStatement).NetProfit)

	expense := ledgertest.CatExpense
	_, err = chart.Update(ctx, ledgertest.Drawing, accounts.UpdateInput{CategoryID: &expense})
	require.NoError(t, err)

	after, err := svc.Build(ctx, q)
	require.NoError(t, err)
	requireAmount(t, "300000", after.(reports.IncomeStatement).NetProfit)
	require.Equal(t, 2, obs.misses[string(reports.KindIncomeStatement)])
}

func TestServiceConsolidatesWhenScopeIsAll(t *testing.T) {
	svc, _, _ := newTestService(t, activity(t))
	report, err := svc.Build(context.Background(), reports.Query{Kind: reports.KindIncomeStatement, All: true, From: day(1, 1), To: day(1, 31)})
	require.NoError(t, err)
	merged, ok := report.(reports.Consolidated[reports.IncomeStatement])
	require.True(t, ok)
	require.Equal(t, reports.KindIncomeStatement, merged.Kind())
	require.Len(t, merged.Businesses, 2)
	requireAmount(t, "620000", merged.Total.NetProfit)
}

func TestServiceValidatesQuery(t *testing.T) {
	svc, _, _ := newTestService(t, activity(t))
	ctx := context.Background()
	_, err := svc.Build(ctx, reports.Query{Kind: reports.KindCashFlow, From: day(1, 1), To: day(1, 31)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Build(ctx, reports.Query{Kind: reports.KindAccountLedger, From: day(1, 1), To: day(1, 31)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Build(ctx, reports.Query{Kind: "pivot"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceWithoutRedisStillBuilds(t *testing.T) {
	svc := reports.NewService(reports.NewEngine(activity(t)), reports.NewCache(nil, time.Minute), nil)
	report, err := svc.Build(context.Background(), reports.Query{Kind: reports.KindAccountBalance, AccountID: ledgertest.CashHead, AsOf: day(1, 31)})
	require.NoError(t, err)
	requireAmount(t, "9950000", report.(reports.AccountBalance).Balance)
}

func TestServiceBuildsUncachedWhenRedisFails(t *testing.T) {
	store := activity(t)
	svc, obs, mr := newTestService(t, store)
	ctx := context.Background()
	q := reports.Query{Kind: reports.KindBalanceSheet, BusinessIDs: []int64{ledgertest.BusinessMain}, AsOf: day(1, 31)}

	_, err := svc.Build(ctx, q)
	require.NoError(t, err)

	mr.SetError("ERR storage offline")
	post(t, store, ledgertest.BusinessMain, day(1, 30), "late sale", dr(ledgertest.Cash, "1000"), cr(ledgertest.Revenue, "1000"))
	report, err := svc.Build(ctx, q)
	require.NoError(t, err)
	requireAmount(t, "10301000", report.(reports.BalanceSheet).Assets.Total)
	require.Equal(t, 1, obs.misses[string(reports.KindBalanceSheet)])

	mr.SetError("")
	svc.LedgerChanged(ctx, "MANUAL", 1)
	report, err = svc.Build(ctx, q)
	require.NoError(t, err)
	requireAmount(t, "10301000", report.(reports.BalanceSheet).Assets.Total)
	require.Equal(t, 2, obs.misses[string(reports.KindBalanceSheet)])
}

func TestCacheListenerFollowsPublishedVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := reports.NewCache(client, time.Minute)
	require.NoError(t, cache.ListenForInvalidation(ctx, ""))
	before, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, reports.BumpChannel, "42").Err())
	require.Eventually(t, func() bool {
		v, err := cache.Version(ctx)
		return err == nil && v == 42
	}, time.Second, 10*time.Millisecond)
	require.Less(t, before, int64(42))
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _ := newTestService(t, activity(t))
	r := chi.NewRouter()
	r.Route("/reports", reports.NewHandler(nil, svc).MountRoutes)
	return r
}

func TestHandlerServesConsolidatedReport(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/balance-sheet?business_id=all&as_of=2025-01-31", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Total struct {
			Balanced bool `json:"balanced"`
		} `json:"total"`
		Businesses []json.RawMessage `json:"businesses"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Total.Balanced)
	require.Len(t, body.Businesses, 2)
}

func TestHandlerMapsErrors(t *testing.T) {
	router := newTestRouter(t)
	cases := []struct {
		path   string
		status int
	}{
		{"/reports/pivot?business_id=1", http.StatusNotFound},
		{"/reports/income-statement?business_id=x", http.StatusBadRequest},
		{"/reports/income-statement?business_id=1&from=2025-02-01&to=2025-01-01", http.StatusBadRequest},
		{"/reports/accounts/999/balance", http.StatusNotFound},
		{"/reports/accounts/1/ledger?from=2025-01-01&to=2025-01-31", http.StatusOK},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.Equalf(t, tc.status, rr.Code, "%s: %s", tc.path, rr.Body.String())
	}
}
