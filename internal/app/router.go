package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/arap"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/cashbank"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/savings"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Pinger reports store reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	DB      Pinger

	AccountsHandler *accounts.Handler
	JournalsHandler *journals.Handler
	InvoiceHandler  *arap.Handler
	BillHandler     *arap.Handler
	CashHandler     *cashbank.Handler
	SavingsHandler  *savings.Handler
	AssetsHandler   *assets.Handler
	ReportsHandler  *reports.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with the ledger API under /api/v1.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				params.Logger.Warn("healthz ping failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		mount(r, "/accounts", params.AccountsHandler, func(h *accounts.Handler) func(chi.Router) { return h.MountRoutes })
		mount(r, "/account-categories", params.AccountsHandler, func(h *accounts.Handler) func(chi.Router) { return h.MountCategoryRoutes })
		mount(r, "/businesses", params.AccountsHandler, func(h *accounts.Handler) func(chi.Router) { return h.MountSettingsRoutes })
		mount(r, "/journals", params.JournalsHandler, func(h *journals.Handler) func(chi.Router) { return h.MountRoutes })
		mount(r, "/invoices", params.InvoiceHandler, func(h *arap.Handler) func(chi.Router) { return h.MountRoutes })
		mount(r, "/bills", params.BillHandler, func(h *arap.Handler) func(chi.Router) { return h.MountRoutes })
		mount(r, "/cash-movements", params.CashHandler, func(h *cashbank.Handler) func(chi.Router) { return h.MountRoutes })
		mount(r, "/savings", params.SavingsHandler, func(h *savings.Handler) func(chi.Router) { return h.MountRoutes })
		mount(r, "/assets", params.AssetsHandler, func(h *assets.Handler) func(chi.Router) { return h.MountRoutes })
		mount(r, "/reports", params.ReportsHandler, func(h *reports.Handler) func(chi.Router) { return h.MountRoutes })
		mount(r, "/jobs", params.JobHandler, func(h *jobs.Handler) func(chi.Router) { return h.MountRoutes })
	})

	return r
}

// mount routes prefix to the handler when it is configured.
func mount[H any](r chi.Router, prefix string, h *H, routes func(*H) func(chi.Router)) {
	if h == nil {
		return
	}
	r.Route(prefix, routes(h))
}
