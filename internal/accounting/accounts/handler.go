package accounts

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes the chart of accounts and finance settings over JSON.
type Handler struct {
	service  *Service
	settings mappings.Repository
	logger   *slog.Logger
}

// NewHandler constructs the account handler.
func NewHandler(logger *slog.Logger, service *Service, settings mappings.Repository) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, settings: settings}
}

// MountRoutes registers /accounts routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

// MountCategoryRoutes registers /account-categories.
func (h *Handler) MountCategoryRoutes(r chi.Router) {
	r.Get("/", h.categories)
}

// MountSettingsRoutes registers /businesses/{id}/finance-settings.
func (h *Handler) MountSettingsRoutes(r chi.Router) {
	r.Get("/{id}/finance-settings", h.getSettings)
	r.Put("/{id}/finance-settings", h.putSettings)
}

type createRequest struct {
	BusinessID int64  `json:"business_id" validate:"required,gt=0"`
	Code       string `json:"code" validate:"required,max=50"`
	Name       string `json:"name" validate:"required,max=200"`
	ParentID   *int64 `json:"parent_id" validate:"omitempty,gt=0"`
	CategoryID *int64 `json:"category_id" validate:"omitempty,gt=0"`
}

type updateRequest struct {
	Code        *string `json:"code" validate:"omitempty,max=50"`
	Name        *string `json:"name" validate:"omitempty,max=200"`
	ParentID    *int64  `json:"parent_id" validate:"omitempty,gt=0"`
	ClearParent bool    `json:"clear_parent"`
	CategoryID  *int64  `json:"category_id" validate:"omitempty,gt=0"`
	IsActive    *bool   `json:"is_active"`
}

type settingsRequest struct {
	ReceivableAccountID *int64 `json:"receivable_account_id" validate:"omitempty,gt=0"`
	PayableAccountID    *int64 `json:"payable_account_id" validate:"omitempty,gt=0"`
	CashAccountID       *int64 `json:"cash_account_id" validate:"omitempty,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.QueryInt64(r, "business_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		BusinessID:  businessID,
		Kind:        Kind(strings.ToUpper(q.Get("kind"))),
		AccountType: AccountType(strings.ToUpper(q.Get("type"))),
		Search:      q.Get("q"),
	}
	accounts, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": accounts})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.Create(r.Context(), CreateInput{
		BusinessID: req.BusinessID,
		Code:       req.Code,
		Name:       req.Name,
		ParentID:   req.ParentID,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
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
	acc, err := h.service.Update(r.Context(), id, UpdateInput{
		Code:        req.Code,
		Name:        req.Name,
		ParentID:    req.ParentID,
		ClearParent: req.ClearParent,
		CategoryID:  req.CategoryID,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.fail(w, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.Categories(r.Context())
	if err != nil {
		h.fail(w, "list categories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": cats})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	settings, err := h.settings.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get finance settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req settingsRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	settings := mappings.BusinessFinanceSettings{
		BusinessID:          id,
		ReceivableAccountID: req.ReceivableAccountID,
		PayableAccountID:    req.PayableAccountID,
		CashAccountID:       req.CashAccountID,
	}
	for _, accountID := range []*int64{req.ReceivableAccountID, req.PayableAccountID, req.CashAccountID} {
		if accountID == nil {
			continue
		}
		if err := h.requirePostingAccount(r, id, *accountID); err != nil {
			h.fail(w, "put finance settings", err)
			return
		}
	}
	if err := h.settings.Save(r.Context(), settings); err != nil {
		h.fail(w, "put finance settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

// requirePostingAccount keeps default accounts pointed at leaves of the same business.
func (h *Handler) requirePostingAccount(r *http.Request, businessID, accountID int64) error {
	acc, err := h.service.Get(r.Context(), accountID)
	if err != nil {
		return err
	}
	if acc.BusinessID != businessID || !acc.IsPosting() {
		return shared.Invalid("account %d is not a posting account of business %d", accountID, businessID)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
