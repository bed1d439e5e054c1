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
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ErrLedgerInconsistent marks a scan that found unbalanced entries or
// reconciliation mismatches.
var ErrLedgerInconsistent = errors.New("ledger integrity: inconsistencies found")

// IntegrityScanner is the read side the scan needs; *reports.Engine satisfies it.
type IntegrityScanner interface {
	Businesses(ctx context.Context) ([]reports.Business, error)
	Integrity(ctx context.Context, businessID int64, asOf time.Time) (reports.IntegrityReport, error)
}

// IntegrityJob checks every business ledger and fails when any is inconsistent.
type IntegrityJob struct {
	Scanner IntegrityScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityJob wires dependencies for the integrity handler.
func NewIntegrityJob(scanner IntegrityScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{
		Scanner: scanner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *IntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("ledger integrity: scanner not configured")
	}
	var payload IntegrityPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, err := parseAsOf(payload.AsOf, j.now())
	if err != nil {
		return fmt.Errorf("ledger integrity: %v: %w", err, asynq.SkipRetry)
	}
	_, err = j.Run(ctx, payload.BusinessID, asOf)
	return err
}

// Run scans one business, or every business when businessID is zero, and
// returns the reports that were not consistent.
func (j *IntegrityJob) Run(ctx context.Context, businessID int64, asOf time.Time) (dirty []reports.IntegrityReport, resultErr error) {
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.log().With(slog.String("as_of", asOf.Format(time.DateOnly)))

	ids := []int64{businessID}
	if businessID == 0 {
		businesses, err := j.Scanner.Businesses(ctx)
		if err != nil {
			logger.Error("list businesses", slog.Any("error", err))
			return nil, err
		}
		ids = ids[:0]
		for _, b := range businesses {
			ids = append(ids, b.ID)
		}
	}

	for _, id := range ids {
		report, err := j.Scanner.Integrity(ctx, id, asOf)
		if err != nil {
			logger.Error("integrity scan", slog.Int64("business_id", id), slog.Any("error", err))
			return dirty, err
		}
		if report.Consistent {
			continue
		}
		mismatches := report.Mismatches()
		j.metrics().AddIntegrityIssues("unbalanced", id, len(report.Unbalanced))
		j.metrics().AddIntegrityIssues("mismatch", id, len(mismatches))
		logger.Warn("ledger inconsistent",
			slog.Int64("business_id", id),
			slog.Int("unbalanced_entries", len(report.Unbalanced)),
			slog.Int("type_mismatches", len(mismatches)))
		dirty = append(dirty, report)
	}
	if len(dirty) > 0 {
		return dirty, fmt.Errorf("%w in %d business(es)", ErrLedgerInconsistent, len(dirty))
	}
	logger.Info("ledger consistent", slog.Int("businesses", len(ids)))
	return nil, nil
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *IntegrityJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *IntegrityJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
