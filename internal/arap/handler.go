package arap

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes invoices or bills over JSON. One handler serves one kind.
type Handler struct {
	kind     Kind
	service  *Service
	settings mappings.Repository
	logger   *slog.Logger
}

// NewHandler constructs a handler for kind.
func NewHandler(logger *slog.Logger, kind Kind, service *Service, settings mappings.Repository) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{kind: kind, service: service, settings: settings, logger: logger}
}

// MountRoutes registers /invoices or /bills routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/aging", h.aging)
	r.Get("/{id}", h.get)
	r.Post("/{id}/issue", h.issue)
	r.Post("/{id}/void", h.void)
	r.Post("/{id}/payments", h.pay)
	r.Get("/{id}/payments/validate", h.validatePayment)
}

type itemRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Description string          `json:"description" validate:"max=255"`
	Amount      decimal.Decimal `json:"amount"`
}

type paymentRequest struct {
	Date             httpx.Date      `json:"payment_date"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentAccountID *int64          `json:"payment_account_id" validate:"omitempty,gt=0"`
}

func (p paymentRequest) input() PaymentInput {
	return PaymentInput{Date: p.Date.Time, Amount: p.Amount, PaymentAccountID: p.PaymentAccountID}
}

type createRequest struct {
	BusinessID     int64           `json:"business_id" validate:"required,gt=0"`
	ContactID      int64           `json:"contact_id" validate:"required,gt=0"`
	Number         string          `json:"number" validate:"max=50"`
	IssueDate      httpx.Date      `json:"issue_date"`
	DueDate        httpx.Date      `json:"due_date"`
	Draft          bool            `json:"draft"`
	Items          []itemRequest   `json:"items" validate:"required,min=1,dive"`
	InitialPayment *paymentRequest `json:"initial_payment"`
}

type issueRequest struct {
	IssueDate *httpx.Date `json:"issue_date"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := DocumentInput{
		Kind:       h.kind,
		BusinessID: req.BusinessID,
		ContactID:  req.ContactID,
		Number:     req.Number,
		IssueDate:  req.IssueDate.Time,
		DueDate:    req.DueDate.Time,
		Draft:      req.Draft,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, ItemInput{AccountID: item.AccountID, Description: item.Description, Amount: item.Amount})
	}
	if req.InitialPayment != nil {
		p := req.InitialPayment.input()
		in.InitialPayment = &p
	}
	settings, err := h.settings.Get(r.Context(), req.BusinessID)
	if err != nil {
		h.fail(w, "load finance settings", err)
		return
	}
	doc, err := h.service.PostDocument(r.Context(), settings, in)
	if err != nil {
		h.fail(w, "post "+h.kind.label(), err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

// settingsFor resolves the finance settings of the document's business.
func (h *Handler) settingsFor(r *http.Request, id int64) (mappings.BusinessFinanceSettings, error) {
	doc, err := h.service.Get(r.Context(), h.kind, id)
	if err != nil {
		return mappings.BusinessFinanceSettings{}, err
	}
	return h.settings.Get(r.Context(), doc.BusinessID)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req issueRequest
	if r.ContentLength > 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	settings, err := h.settingsFor(r, id)
	if err != nil {
		h.fail(w, "load finance settings", err)
		return
	}
	var issueDate *time.Time
	if req.IssueDate != nil {
		issueDate = &req.IssueDate.Time
	}
	doc, err := h.service.Issue(r.Context(), settings, h.kind, id, issueDate)
	if err != nil {
		h.fail(w, "issue "+h.kind.label(), err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Void(r.Context(), h.kind, id)
	if err != nil {
		h.fail(w, "void "+h.kind.label(), err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	settings, err := h.settingsFor(r, id)
	if err != nil {
		h.fail(w, "load finance settings", err)
		return
	}
	doc, payment, err := h.service.ApplyPayment(r.Context(), settings, h.kind, id, req.input())
	if err != nil {
		h.fail(w, "apply payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"document": doc, "payment": payment})
}

func (h *Handler) validatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get("amount")))
	if err != nil {
		httpx.RespondError(w, shared.Invalid("invalid amount %q", r.URL.Query().Get("amount")))
		return
	}
	check, err := h.service.ValidatePayment(r.Context(), h.kind, id, amount)
	if err != nil {
		h.fail(w, "validate payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Get(r.Context(), h.kind, id)
	if err != nil {
		h.fail(w, "get "+h.kind.label(), err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Kind: h.kind, Status: Status(strings.ToUpper(r.URL.Query().Get("status")))}
	var err error
	if filter.BusinessID, err = httpx.QueryInt64(r, "business_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.ContactID, err = httpx.QueryInt64(r, "contact_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Page, err = httpx.QueryInt(r, "page"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.PerPage, err = httpx.QueryInt(r, "per_page"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	docs, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list "+h.kind.label()+"s", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": docs, "pagination": page})
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.QueryInt64(r, "business_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if businessID <= 0 {
		httpx.RespondError(w, shared.Invalid("business_id is required"))
		return
	}
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var at time.Time
	if asOf != nil {
		at = *asOf
	}
	bucket, err := h.service.Aging(r.Context(), h.kind, businessID, at)
	if err != nil {
		h.fail(w, "aging", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"buckets": bucket, "total": bucket.Total()})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("kind", string(h.kind)), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
