package journals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ModuleManual tags entries keyed in directly rather than derived from a document.
const ModuleManual = "MANUAL"

// AuditPort records ledger mutations after commit.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the Journal Ledger.
type Service struct {
	repo     Repository
	audit    AuditPort
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the journal service.
func NewService(repo Repository, audit AuditPort, observer Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, observer: observer, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry posts a manual journal entry.
func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (JournalEntry, error) {
	if err := in.Normalized().Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = Post(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.committed(ctx, "journal.create", entry, in.CreatedBy)
	return entry, nil
}

// UpdateEntry changes header fields and optionally replaces every line.
func (s *Service) UpdateEntry(ctx context.Context, id int64, in UpdateInput) (JournalEntry, error) {
	if in.Lines != nil {
		if err := validateLines(normalizeLines(in.Lines)); err != nil {
			return JournalEntry{}, err
		}
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.Date != nil {
			current.EntryDate = DateOnly(*in.Date)
		}
		if in.Description != nil {
			current.Description = strings.TrimSpace(*in.Description)
		}
		if in.Reference != nil {
			ref := strings.TrimSpace(*in.Reference)
			current.ReferenceNumber = &ref
			if ref == "" {
				current.ReferenceNumber = nil
			}
		}
		if err := tx.UpdateHeader(ctx, current); err != nil {
			return err
		}
		if in.Lines != nil {
			lines := normalizeLines(in.Lines)
			if err := checkAccounts(ctx, tx, current.BusinessID, lines); err != nil {
				return err
			}
			if err := tx.DeleteLines(ctx, current.ID); err != nil {
				return err
			}
			inserted, err := tx.InsertLines(ctx, current.ID, lines)
			if err != nil {
				return err
			}
			current.Lines = inserted
		}
		current.UpdatedAt = s.now()
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.committed(ctx, "journal.update", entry, 0)
	return entry, nil
}

// DeleteEntry removes an entry with its lines and source links.
func (s *Service) DeleteEntry(ctx context.Context, id int64) error {
	var removed JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		removed = current
		return tx.DeleteEntry(ctx, id)
	})
	if err != nil {
		return err
	}
	s.committed(ctx, "journal.delete", removed, 0)
	return nil
}

// GetEntry returns one entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// ListEntries returns a page of entries.
func (s *Service) ListEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, internalShared.Pagination, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return entries, internalShared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) committed(ctx context.Context, action string, entry JournalEntry, actor int64) {
	module := entry.SourceModule
	if module == "" {
		module = ModuleManual
	}
	Notify(ctx, s.observer, module, 1)
	if s.audit == nil {
		return
	}
	debit, credit := entry.Totals()
	err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta: map[string]any{
			"business_id":   entry.BusinessID,
			"source_module": entry.SourceModule,
			"debit":         debit.StringFixed(2),
			"credit":        credit.StringFixed(2),
		},
		At: s.now(),
	})
	if err != nil {
		s.logger.Warn("audit journal entry", slog.String("action", action), slog.Int64("entry_id", entry.ID), slog.Any("error", err))
	}
}
