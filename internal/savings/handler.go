package savings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes members, savings types and submissions over JSON.
type Handler struct {
	service  *Service
	settings mappings.Repository
	logger   *slog.Logger
}

// NewHandler constructs the savings handler.
func NewHandler(logger *slog.Logger, service *Service, settings mappings.Repository) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, settings: settings, logger: logger}
}

// MountRoutes registers /savings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.submit)
	r.Get("/types", h.listTypes)
	r.Post("/types", h.createType)
	r.Post("/members", h.createMember)
	r.Get("/members/{id}/balances", h.balances)
	r.Get("/members/{id}/transactions", h.transactions)
}

type itemRequest struct {
	SavingsTypeID int64           `json:"savings_type_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note" validate:"max=255"`
}

type submitRequest struct {
	MemberID int64         `json:"member_id" validate:"required,gt=0"`
	Type     string        `json:"transaction_type" validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	Date     httpx.Date    `json:"transaction_date"`
	Items    []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type memberRequest struct {
	BusinessID int64  `json:"business_id" validate:"required,gt=0"`
	Number     string `json:"number" validate:"required,max=50"`
	Name       string `json:"name" validate:"required,max=255"`
}

type typeRequest struct {
	BusinessID          int64  `json:"business_id" validate:"required,gt=0"`
	Code                string `json:"code" validate:"required,max=30"`
	Name                string `json:"name" validate:"required,max=255"`
	SavingsAccountID    int64  `json:"savings_account_id" validate:"required,gt=0"`
	SettlementAccountID *int64 `json:"settlement_account_id" validate:"omitempty,gt=0"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	member, err := h.service.Member(r.Context(), req.MemberID)
	if err != nil {
		h.fail(w, "load member", err)
		return
	}
	settings, err := h.settings.Get(r.Context(), member.BusinessID)
	if err != nil {
		h.fail(w, "load finance settings", err)
		return
	}
	in := SubmissionInput{
		MemberID: req.MemberID,
		Kind:     posting.SavingsKind(req.Type),
		Date:     req.Date.Time,
	}
	if key, err := uuid.Parse(r.Header.Get("Idempotency-Key")); err == nil {
		in.Submission = key
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, ItemInput{SavingsTypeID: item.SavingsTypeID, Amount: item.Amount, Note: item.Note})
	}
	result, err := h.service.PostSubmission(r.Context(), settings, in)
	if err != nil {
		h.fail(w, "post savings", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"journals_created": result.JournalsCreated(),
		"journals":         result.Journals,
		"transactions":     result.Transactions,
	})
}

func (h *Handler) createMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.CreateMember(r.Context(), Member{BusinessID: req.BusinessID, Number: req.Number, Name: req.Name})
	if err != nil {
		h.fail(w, "create member", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request) {
	var req typeRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.CreateType(r.Context(), Type{
		BusinessID:          req.BusinessID,
		Code:                req.Code,
		Name:                req.Name,
		SavingsAccountID:    req.SavingsAccountID,
		SettlementAccountID: req.SettlementAccountID,
	})
	if err != nil {
		h.fail(w, "create savings type", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.QueryInt64(r, "business_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if businessID <= 0 {
		httpx.RespondError(w, shared.Invalid("business_id is required"))
		return
	}
	types, err := h.service.Types(r.Context(), businessID)
	if err != nil {
		h.fail(w, "list savings types", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": types})
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.service.Balances(r.Context(), id)
	if err != nil {
		h.fail(w, "member balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"member_id": id, "data": balances})
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Transactions(r.Context(), id)
	if err != nil {
		h.fail(w, "member transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"member_id": id, "data": rows})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
