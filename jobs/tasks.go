package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans every business for unbalanced entries and
	// reconciliation mismatches.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReportWarmup rebuilds cached statements after the ledger moved.
	TaskReportWarmup = "reports:warmup"
)

// IntegrityPayload scopes an integrity scan. Zero BusinessID scans every
// business; an empty AsOf means today.
type IntegrityPayload struct {
	BusinessID int64  `json:"business_id,omitempty"`
	AsOf       string `json:"as_of,omitempty"`
}

// WarmupPayload scopes a report warm-up.
type WarmupPayload struct {
	BusinessID int64  `json:"business_id,omitempty"`
	AsOf       string `json:"as_of,omitempty"`
}

// NewIntegrityTask creates an Asynq task for the ledger integrity scan.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(2), asynq.Timeout(10*time.Minute)), nil
}

// NewWarmupTask creates an Asynq task for the report cache warm-up.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1), asynq.Timeout(5*time.Minute)), nil
}

// parseAsOf reads a YYYY-MM-DD date, falling back to today.
func parseAsOf(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now.UTC().Truncate(24 * time.Hour), nil
	}
	return time.Parse(time.DateOnly, value)
}
