package journals

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes the journal ledger over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the journal handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type lineRequest struct {
	AccountID int64            `json:"account_id" validate:"required,gt=0"`
	EntryType shared.EntryType `json:"entry_type" validate:"required,oneof=DEBIT CREDIT"`
	Amount    decimal.Decimal  `json:"amount"`
}

type createRequest struct {
	BusinessID  int64         `json:"business_id" validate:"required,gt=0"`
	Date        httpx.Date    `json:"date"`
	Description string        `json:"description" validate:"max=500"`
	Reference   string        `json:"reference_number" validate:"max=100"`
	CreatedBy   int64         `json:"created_by"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type updateRequest struct {
	Date        *httpx.Date   `json:"date"`
	Description *string       `json:"description" validate:"omitempty,max=500"`
	Reference   *string       `json:"reference_number" validate:"omitempty,max=100"`
	Lines       []lineRequest `json:"lines" validate:"omitempty,min=2,dive"`
}

func toLines(in []lineRequest) []LineInput {
	if in == nil {
		return nil
	}
	out := make([]LineInput, len(in))
	for i, l := range in {
		out[i] = LineInput{AccountID: l.AccountID, EntryType: l.EntryType, Amount: l.Amount}
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), EntryInput{
		BusinessID:  req.BusinessID,
		Date:        req.Date.Time,
		Description: req.Description,
		Reference:   req.Reference,
		CreatedBy:   req.CreatedBy,
		Lines:       toLines(req.Lines),
	})
	if err != nil {
		h.fail(w, "create journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateInput{Description: req.Description, Reference: req.Reference, Lines: toLines(req.Lines)}
	if req.Date != nil && !req.Date.IsZero() {
		in.Date = &req.Date.Time
	}
	entry, err := h.service.UpdateEntry(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteEntry(r.Context(), id); err != nil {
		h.fail(w, "delete journal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var (
		filter ListFilter
		err    error
	)
	if filter.BusinessID, err = httpx.QueryInt64(r, "business_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.AccountID, err = httpx.QueryInt64(r, "account_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
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
	filter.Search = r.URL.Query().Get("q")
	entries, page, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries, "pagination": page})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
