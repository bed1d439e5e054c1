package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

var asOf = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

func post(t *testing.T, store *ledgertest.Store, business, debit, credit int64, amount string) journals.JournalEntry {
	t.Helper()
	entry, err := store.Post(context.Background(), journals.EntryInput{
		BusinessID: business,
		Date:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Lines: []journals.LineInput{
			{AccountID: debit, EntryType: shared.Debit, Amount: decimal.RequireFromString(amount)},
			{AccountID: credit, EntryType: shared.Credit, Amount: decimal.RequireFromString(amount)},
		},
	})
	require.NoError(t, err)
	return entry
}

func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestIntegrityJobPassesOnBalancedLedger(t *testing.T) {
	store := ledgertest.Seeded()
	post(t, store, ledgertest.BusinessMain, ledgertest.Cash, ledgertest.Capital, "1000000")
	post(t, store, ledgertest.BusinessBranch, ledgertest.BranchCash, ledgertest.BranchCapital, "500000")

	reg := prometheus.NewRegistry()
	job := NewIntegrityJob(reports.NewEngine(store), nil, jobmetrics.NewMetrics(reg))
	dirty, err := job.Run(context.Background(), 0, asOf)
	require.NoError(t, err)
	require.Empty(t, dirty)
	require.Equal(t, 1.0, counter(t, reg, "odyssey_jobs_total", map[string]string{"job": TaskLedgerIntegrity, "status": "success"}))
}

func TestIntegrityJobFailsOnUnbalancedEntry(t *testing.T) {
	store := ledgertest.Seeded()
	post(t, store, ledgertest.BusinessMain, ledgertest.Cash, ledgertest.Capital, "1000000")
	broken := post(t, store, ledgertest.BusinessMain, ledgertest.Expense, ledgertest.Cash, "10")
	store.ForceLines(broken.ID, broken.Lines[:1])

	reg := prometheus.NewRegistry()
	job := NewIntegrityJob(reports.NewEngine(store), nil, jobmetrics.NewMetrics(reg))
	job.WithClock(func() time.Time { return asOf })

	payload, err := json.Marshal(IntegrityPayload{})
	require.NoError(t, err)
	err = job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, payload))
	require.ErrorIs(t, err, ErrLedgerInconsistent)

	require.Equal(t, 1.0, counter(t, reg, "odyssey_jobs_failures_total", map[string]string{"job": TaskLedgerIntegrity}))
	require.Equal(t, 1.0, counter(t, reg, "odyssey_ledger_integrity_issues_total", map[string]string{"kind": "unbalanced", "business": "1"}))

	dirty, err := job.Run(context.Background(), ledgertest.BusinessBranch, asOf)
	require.NoError(t, err)
	require.Empty(t, dirty)
}

func TestIntegrityJobRejectsBadPayload(t *testing.T) {
	job := NewIntegrityJob(reports.NewEngine(ledgertest.Seeded()), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte(`{"as_of":"31/03/2025"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *IntegrityJob
	require.Error(t, unconfigured.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil)))
}

type cacheCounter struct {
	mu           sync.Mutex
	hits, misses map[string]int
}

func (c *cacheCounter) CacheHit(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[kind]++
}

func (c *cacheCounter) CacheMiss(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses[kind]++
}

func TestWarmupJobFillsReportCache(t *testing.T) {
	store := ledgertest.Seeded()
	post(t, store, ledgertest.BusinessMain, ledgertest.Cash, ledgertest.Capital, "1000000")
	post(t, store, ledgertest.BusinessBranch, ledgertest.BranchCash, ledgertest.BranchCapital, "500000")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	obs := &cacheCounter{hits: map[string]int{}, misses: map[string]int{}}
	engine := reports.NewEngine(store)
	service := reports.NewService(engine, reports.NewCache(client, time.Minute).WithObserver(obs), nil)

	job := NewWarmupJob(service, engine, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	warmed, err := job.Run(context.Background(), 0, asOf)
	require.NoError(t, err)
	// Two statements for each of two businesses plus the consolidated pair.
	require.Equal(t, 6, warmed)
	require.Equal(t, 3, obs.misses[string(reports.KindTrialBalance)])

	_, err = service.Build(context.Background(), reports.Query{Kind: reports.KindTrialBalance, BusinessIDs: []int64{ledgertest.BusinessMain}, AsOf: asOf})
	require.NoError(t, err)
	require.Equal(t, 1, obs.hits[string(reports.KindTrialBalance)])

	warmed, err = job.Run(context.Background(), ledgertest.BusinessBranch, asOf)
	require.NoError(t, err)
	require.Equal(t, 2, warmed)
}

type fakeEnqueuer struct {
	integrity []IntegrityPayload
	warmup    []WarmupPayload
	err       error
}

func (f *fakeEnqueuer) EnqueueIntegrity(_ context.Context, p IntegrityPayload) (*asynq.TaskInfo, error) {
	f.integrity = append(f.integrity, p)
	return &asynq.TaskInfo{ID: "t-1", Queue: QueueDefault}, f.err
}

func (f *fakeEnqueuer) EnqueueWarmup(_ context.Context, p WarmupPayload) (*asynq.TaskInfo, error) {
	f.warmup = append(f.warmup, p)
	return &asynq.TaskInfo{ID: "t-2", Queue: QueueDefault}, f.err
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHandlerEnqueuesJobs(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, enqueuer, nil).MountRoutes)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/jobs/integrity", `{"business_id":2,"as_of":"2025-03-31"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Equal(t, []IntegrityPayload{{BusinessID: 2, AsOf: "2025-03-31"}}, enqueuer.integrity)

	rr = do(http.MethodPost, "/jobs/warmup", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Contains(t, rr.Body.String(), `"t-2"`)
	require.Equal(t, []WarmupPayload{{}}, enqueuer.warmup)

	rr = do(http.MethodGet, "/jobs/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":3}`, rr.Body.String())

	enqueuer.err = errors.New("redis down")
	require.Equal(t, http.StatusServiceUnavailable, do(http.MethodPost, "/jobs/warmup", "").Code)
}

func TestHandlerWithoutQueue(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{err: errors.New("no redis")}, nil, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/integrity", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
