// Package cashbank posts cash receipts and disbursements.
package cashbank

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MovementInput describes one cash receipt or disbursement.
type MovementInput struct {
	BusinessID  int64
	Direction   posting.Direction
	Date        time.Time
	Description string
	Reference   string
	CreatedBy   int64
	// CashAccountID overrides the business default cash account.
	CashAccountID *int64
	Lines         []journals.LineInput
	// IdempotencyKey makes retries of the same request fail with
	// ErrSourceAlreadyLinked instead of posting twice.
	IdempotencyKey string
}

// Service posts cash movements through the journal ledger.
type Service struct {
	ledger   journals.Repository
	audit    journals.AuditPort
	observer journals.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the cash service.
func NewService(ledger journals.Repository, audit journals.AuditPort, observer journals.Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, audit: audit, observer: observer, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostCashMovement derives the balancing cash leg and posts the entry.
func (s *Service) PostCashMovement(ctx context.Context, settings mappings.BusinessFinanceSettings, in MovementInput) (journals.JournalEntry, error) {
	if in.BusinessID <= 0 {
		return journals.JournalEntry{}, shared.Invalid("business is required")
	}
	if settings.BusinessID != in.BusinessID {
		return journals.JournalEntry{}, shared.Invalid("settings belong to business %d, movement to %d", settings.BusinessID, in.BusinessID)
	}
	cash, err := settings.CashOr(in.CashAccountID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	rule := posting.CashMovement{
		BusinessID:    in.BusinessID,
		Direction:     posting.Direction(strings.ToUpper(string(in.Direction))),
		Date:          in.Date,
		Description:   in.Description,
		Reference:     in.Reference,
		CreatedBy:     in.CreatedBy,
		CashAccountID: cash,
		Lines:         in.Lines,
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		rule.Ref = posting.SourceID("CASH", in.BusinessID, key)
	}
	var entry journals.JournalEntry
	err = s.ledger.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		var err error
		entry, err = posting.Apply(ctx, tx, rule)
		return err
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	journals.Notify(ctx, s.observer, posting.ModuleCash, 1)
	s.record(ctx, in, entry)
	return entry, nil
}

func (s *Service) record(ctx context.Context, in MovementInput, entry journals.JournalEntry) {
	if s.audit == nil {
		return
	}
	cash := decimal.Zero
	if len(entry.Lines) > 0 {
		cash = entry.Lines[0].Amount
	}
	err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  in.CreatedBy,
		Action:   "cash." + strings.ToLower(string(in.Direction)),
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta:     map[string]any{"business_id": in.BusinessID, "amount": cash.StringFixed(2)},
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit cash movement", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
	}
}

// keyFromHeader normalizes an Idempotency-Key header; UUID keys keep their canonical form.
func keyFromHeader(raw string) string {
	raw = strings.TrimSpace(raw)
	if id, err := uuid.Parse(raw); err == nil {
		return id.String()
	}
	return raw
}
