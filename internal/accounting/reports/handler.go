package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes reports over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}/ledger", h.accountReport(KindAccountLedger))
	r.Get("/accounts/{id}/balance", h.accountReport(KindAccountBalance))
	r.Get("/integrity", h.integrity)
	r.Get("/{kind}", h.report)
}

var routedKinds = map[Kind]bool{
	KindGeneralLedger:   true,
	KindTrialBalance:    true,
	KindIncomeStatement: true,
	KindBalanceSheet:    true,
	KindCashFlow:        true,
	KindEquityChange:    true,
	KindFinancialRatios: true,
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	if !routedKinds[kind] {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown report "+string(kind))
		return
	}
	q := Query{Kind: kind}
	var err error
	if q.BusinessIDs, q.All, err = businessScope(r.URL.Query().Get("business_id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.dates(r, &q); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, q)
}

func (h *Handler) accountReport(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		q := Query{Kind: kind, AccountID: id}
		if err := h.dates(r, &q); err != nil {
			httpx.RespondError(w, err)
			return
		}
		h.respond(w, r, q)
	}
}

func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.QueryInt64(r, "business_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := Query{Kind: KindIntegrity}
	if err := h.dates(r, &q); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Engine().Integrity(r.Context(), businessID, q.AsOf)
	if err != nil {
		h.fail(w, "integrity check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, q Query) {
	report, err := h.service.Build(r.Context(), q)
	if err != nil {
		h.fail(w, "build report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// dates reads as_of (default today) and the from/to range.
func (h *Handler) dates(r *http.Request, q *Query) error {
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		return err
	}
	if asOf != nil {
		q.AsOf = *asOf
	} else {
		q.AsOf = h.now().UTC().Truncate(24 * time.Hour)
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		return err
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		return err
	}
	if from != nil {
		q.From = *from
	}
	if to != nil {
		q.To = *to
	}
	return nil
}

// businessScope parses business_id as "all" or a comma separated id list.
func businessScope(raw string) ([]int64, bool, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "all") {
		return nil, true, nil
	}
	if raw == "" {
		return nil, false, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, false, shared.Invalid("invalid business_id %q", part)
		}
		ids = appendUnique(ids, id)
	}
	return ids, false, nil
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
