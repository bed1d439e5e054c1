package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// ReportBuilder builds reports through the cache; *reports.Service satisfies it.
type ReportBuilder interface {
	Build(ctx context.Context, q reports.Query) (reports.Report, error)
}

// BusinessLister enumerates businesses; *reports.Engine satisfies it.
type BusinessLister interface {
	Businesses(ctx context.Context) ([]reports.Business, error)
}

var warmedKinds = []reports.Kind{reports.KindTrialBalance, reports.KindBalanceSheet}

// WarmupJob pre-populates the report cache with point-in-time statements.
type WarmupJob struct {
	Reports    ReportBuilder
	Businesses BusinessLister
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewWarmupJob wires dependencies for the warm-up handler.
func NewWarmupJob(builder ReportBuilder, businesses BusinessLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Reports:    builder,
		Businesses: businesses,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskReportWarmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reports == nil || j.Businesses == nil {
		return errors.New("report warmup: dependencies not configured")
	}
	var payload WarmupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, err := parseAsOf(payload.AsOf, j.now())
	if err != nil {
		return fmt.Errorf("report warmup: %v: %w", err, asynq.SkipRetry)
	}
	_, err = j.Run(ctx, payload.BusinessID, asOf)
	return err
}

// Run builds the warmed statements per business plus the consolidated view
// and returns how many reports were built. A business whose chart fails a
// report precondition is skipped.
func (j *WarmupJob) Run(ctx context.Context, businessID int64, asOf time.Time) (warmed int, resultErr error) {
	tracker := j.metrics().Track(TaskReportWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.log().With(slog.String("as_of", asOf.Format(time.DateOnly)))
	start := time.Now()

	queries, err := j.queries(ctx, businessID, asOf)
	if err != nil {
		logger.Error("list businesses", slog.Any("error", err))
		return 0, err
	}
	for _, q := range queries {
		if _, err := j.Reports.Build(ctx, q); err != nil {
			if errors.Is(err, shared.ErrReportPrecondition) {
				logger.Warn("skip report", slog.String("kind", string(q.Kind)), slog.Any("business_ids", q.BusinessIDs), slog.Any("error", err))
				continue
			}
			logger.Error("build report", slog.String("kind", string(q.Kind)), slog.Any("business_ids", q.BusinessIDs), slog.Any("error", err))
			return warmed, err
		}
		warmed++
	}
	logger.Info("warmed report cache", slog.Int("reports", warmed), slog.Duration("duration", time.Since(start)))
	return warmed, nil
}

func (j *WarmupJob) queries(ctx context.Context, businessID int64, asOf time.Time) ([]reports.Query, error) {
	var queries []reports.Query
	if businessID > 0 {
		for _, kind := range warmedKinds {
			queries = append(queries, reports.Query{Kind: kind, BusinessIDs: []int64{businessID}, AsOf: asOf})
		}
		return queries, nil
	}
	businesses, err := j.Businesses.Businesses(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range businesses {
		for _, kind := range warmedKinds {
			queries = append(queries, reports.Query{Kind: kind, BusinessIDs: []int64{b.ID}, AsOf: asOf})
		}
	}
	if len(businesses) > 1 {
		for _, kind := range warmedKinds {
			queries = append(queries, reports.Query{Kind: kind, All: true, AsOf: asOf})
		}
	}
	return queries, nil
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}

func (j *WarmupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *WarmupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
