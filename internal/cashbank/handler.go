package cashbank

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes cash movements over JSON.
type Handler struct {
	service  *Service
	settings mappings.Repository
	logger   *slog.Logger
}

// NewHandler constructs the cash handler.
func NewHandler(logger *slog.Logger, service *Service, settings mappings.Repository) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, settings: settings, logger: logger}
}

// MountRoutes registers /cash-movements.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.post)
}

type lineRequest struct {
	AccountID int64            `json:"account_id" validate:"required,gt=0"`
	EntryType shared.EntryType `json:"entry_type" validate:"omitempty,oneof=DEBIT CREDIT"`
	Amount    decimal.Decimal  `json:"amount"`
}

type movementRequest struct {
	BusinessID    int64         `json:"business_id" validate:"required,gt=0"`
	Direction     string        `json:"direction" validate:"required,oneof=IN OUT"`
	Date          httpx.Date    `json:"date"`
	Description   string        `json:"description" validate:"max=500"`
	Reference     string        `json:"reference_number" validate:"max=100"`
	CreatedBy     int64         `json:"created_by"`
	CashAccountID *int64        `json:"cash_account_id" validate:"omitempty,gt=0"`
	Lines         []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := MovementInput{
		BusinessID:     req.BusinessID,
		Direction:      posting.Direction(req.Direction),
		Date:           req.Date.Time,
		Description:    req.Description,
		Reference:      req.Reference,
		CreatedBy:      req.CreatedBy,
		CashAccountID:  req.CashAccountID,
		IdempotencyKey: keyFromHeader(r.Header.Get("Idempotency-Key")),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, journals.LineInput{AccountID: l.AccountID, EntryType: l.EntryType, Amount: l.Amount})
	}
	settings, err := h.settings.Get(r.Context(), req.BusinessID)
	if err != nil {
		h.fail(w, "load finance settings", err)
		return
	}
	entry, err := h.service.PostCashMovement(r.Context(), settings, in)
	if err != nil {
		h.fail(w, "post cash movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"journal_entry_id": entry.ID, "entry": entry})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
