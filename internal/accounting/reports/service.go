package reports

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Query selects one report. BusinessIDs with more than one id, or All,
// produce the consolidated variant.
type Query struct {
	Kind        Kind
	BusinessIDs []int64
	All         bool
	AccountID   int64
	AsOf        time.Time
	From        time.Time
	To          time.Time
}

func (q Query) consolidated() bool {
	return q.All || len(q.BusinessIDs) > 1
}

func (q Query) scope() []int64 {
	if q.All {
		return nil
	}
	return q.BusinessIDs
}

func (q Query) validate() error {
	switch q.Kind {
	case KindAccountBalance, KindAccountLedger:
		if q.AccountID <= 0 {
			return shared.Invalid("account required")
		}
		return nil
	case KindGeneralLedger:
		return nil
	case KindTrialBalance, KindIncomeStatement, KindBalanceSheet, KindCashFlow, KindEquityChange, KindFinancialRatios:
		if !q.All && len(q.BusinessIDs) == 0 {
			return shared.Invalid("business_id required")
		}
		return nil
	default:
		return shared.Invalid("unknown report %q", q.Kind)
	}
}

func (q Query) key() []string {
	scope := "all"
	if !q.All {
		ids := make([]string, len(q.BusinessIDs))
		for i, id := range q.BusinessIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		scope = strings.Join(ids, ",")
	}
	return []string{"reports", string(q.Kind), scope, strconv.FormatInt(q.AccountID, 10),
		dateKey(q.AsOf), dateKey(q.From), dateKey(q.To)}
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// Service serves cached reports and invalidates them after ledger writes.
type Service struct {
	engine *Engine
	cache  *Cache
	logger *slog.Logger
}

// NewService wires the engine with a cache.
func NewService(engine *Engine, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cache != nil {
		cache.logger = logger
	}
	return &Service{engine: engine, cache: cache, logger: logger}
}

// Engine exposes the uncached engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// LedgerChanged implements journals.Observer by bumping the cache version.
func (s *Service) LedgerChanged(ctx context.Context, module string, entries int) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.String("module", module), slog.Int("entries", entries), slog.Any("error", err))
	}
}

var _ journals.Observer = (*Service)(nil)

// Build returns the report selected by q, from cache when possible.
func (s *Service) Build(ctx context.Context, q Query) (Report, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, q.key()...)
	if err != nil {
		s.logger.Warn("report cache unavailable, building uncached", slog.String("kind", string(q.Kind)), slog.Any("error", err))
		key = ""
	}
	e := s.engine
	single := int64(0)
	if len(q.BusinessIDs) > 0 {
		single = q.BusinessIDs[0]
	}

	switch q.Kind {
	case KindAccountBalance:
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (AccountBalance, error) {
			return e.BalanceAsOf(ctx, q.AccountID, q.AsOf)
		})
	case KindAccountLedger:
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (AccountLedger, error) {
			return e.Ledger(ctx, q.AccountID, q.From, q.To)
		})
	case KindGeneralLedger:
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (GeneralLedger, error) {
			return e.GeneralLedger(ctx, q.scope(), q.From, q.To)
		})
	case KindTrialBalance:
		if q.consolidated() {
			return cached(ctx, s, q.Kind, key, func(ctx context.Context) (Consolidated[TrialBalance], error) {
				return e.ConsolidatedTrialBalance(ctx, q.scope(), q.AsOf)
			})
		}
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (TrialBalance, error) {
			return e.TrialBalance(ctx, single, q.AsOf)
		})
	case KindIncomeStatement:
		if q.consolidated() {
			return cached(ctx, s, q.Kind, key, func(ctx context.Context) (Consolidated[IncomeStatement], error) {
				return e.ConsolidatedIncomeStatement(ctx, q.scope(), q.From, q.To)
			})
		}
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (IncomeStatement, error) {
			return e.IncomeStatement(ctx, single, q.From, q.To)
		})
	case KindBalanceSheet:
		if q.consolidated() {
			return cached(ctx, s, q.Kind, key, func(ctx context.Context) (Consolidated[BalanceSheet], error) {
				return e.ConsolidatedBalanceSheet(ctx, q.scope(), q.AsOf)
			})
		}
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (BalanceSheet, error) {
			return e.BalanceSheet(ctx, single, q.AsOf)
		})
	case KindCashFlow:
		if q.consolidated() {
			return cached(ctx, s, q.Kind, key, func(ctx context.Context) (Consolidated[CashFlowStatement], error) {
				return e.ConsolidatedCashFlow(ctx, q.scope(), q.From, q.To)
			})
		}
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (CashFlowStatement, error) {
			return e.CashFlow(ctx, single, q.From, q.To)
		})
	case KindEquityChange:
		if q.consolidated() {
			return cached(ctx, s, q.Kind, key, func(ctx context.Context) (Consolidated[EquityChangeStatement], error) {
				return e.ConsolidatedEquityChange(ctx, q.scope(), q.From, q.To)
			})
		}
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (EquityChangeStatement, error) {
			return e.EquityChange(ctx, single, q.From, q.To)
		})
	default:
		if q.consolidated() {
			return cached(ctx, s, q.Kind, key, func(ctx context.Context) (Consolidated[FinancialRatios], error) {
				return e.ConsolidatedFinancialRatios(ctx, q.scope(), q.From, q.To)
			})
		}
		return cached(ctx, s, q.Kind, key, func(ctx context.Context) (FinancialRatios, error) {
			return e.FinancialRatios(ctx, single, q.From, q.To)
		})
	}
}

func cached[T Report](ctx context.Context, s *Service, kind Kind, key string, build func(context.Context) (T, error)) (Report, error) {
	report, err := fetch(ctx, s.cache, kind, key, build)
	if err != nil {
		return nil, err
	}
	return report, nil
}
