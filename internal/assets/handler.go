package assets

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes fixed assets and depreciation runs over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the asset handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers /assets routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/depreciation/run-due", h.runDue)
	r.Post("/schedules/{id}/run", h.run)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Put("/{id}/depreciation-setting", h.updateSetting)
}

type settingRequest struct {
	StartDate            httpx.Date      `json:"depreciation_start_date"`
	UsefulLifeMonths     int             `json:"useful_life_months" validate:"required,gt=0"`
	SalvageValue         decimal.Decimal `json:"salvage_value"`
	ExpenseAccountID     int64           `json:"expense_account_id" validate:"required,gt=0"`
	AccumulatedAccountID int64           `json:"accumulated_account_id" validate:"required,gt=0"`
}

func (s settingRequest) input() SettingInput {
	return SettingInput{
		StartDate:            s.StartDate.Time,
		UsefulLifeMonths:     s.UsefulLifeMonths,
		SalvageValue:         s.SalvageValue,
		ExpenseAccountID:     s.ExpenseAccountID,
		AccumulatedAccountID: s.AccumulatedAccountID,
	}
}

type createRequest struct {
	BusinessID      int64           `json:"business_id" validate:"required,gt=0"`
	Code            string          `json:"code" validate:"required,max=50"`
	Name            string          `json:"name" validate:"required,max=255"`
	AcquisitionDate httpx.Date      `json:"acquisition_date"`
	AcquisitionCost decimal.Decimal `json:"acquisition_cost"`
	AssetAccountID  int64           `json:"asset_account_id" validate:"required,gt=0"`
	Setting         *settingRequest `json:"depreciation_setting"`
}

type runDueRequest struct {
	BusinessID int64      `json:"business_id" validate:"required,gt=0"`
	AsOf       httpx.Date `json:"as_of"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := AssetInput{
		BusinessID:      req.BusinessID,
		Code:            req.Code,
		Name:            req.Name,
		AcquisitionDate: req.AcquisitionDate.Time,
		AcquisitionCost: req.AcquisitionCost,
		AssetAccountID:  req.AssetAccountID,
	}
	if req.Setting != nil {
		setting := req.Setting.input()
		in.Setting = &setting
	}
	asset, err := h.service.CreateAsset(r.Context(), in)
	if err != nil {
		h.fail(w, "create fixed asset", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.view(asset))
}

func (h *Handler) updateSetting(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req settingRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	asset, err := h.service.UpdateSetting(r.Context(), id, req.input())
	if err != nil {
		h.fail(w, "update depreciation setting", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.view(asset))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteAsset(r.Context(), id); err != nil {
		h.fail(w, "delete fixed asset", err)
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
	asset, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get fixed asset", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.view(asset))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	businessID, err := httpx.QueryInt64(r, "business_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.List(r.Context(), businessID)
	if err != nil {
		h.fail(w, "list fixed assets", err)
		return
	}
	views := make([]assetView, len(list))
	for i, a := range list {
		views[i] = h.view(a)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.RunDepreciation(r.Context(), id)
	if err != nil {
		h.fail(w, "run depreciation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) runDue(w http.ResponseWriter, r *http.Request) {
	var req runDueRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.RunDueDepreciation(r.Context(), req.BusinessID, req.AsOf.Time)
	if err != nil {
		h.fail(w, "run due depreciation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type assetView struct {
	Asset
	PostedDepreciation decimal.Decimal `json:"posted_depreciation"`
	BookValue          decimal.Decimal `json:"book_value"`
}

func (h *Handler) view(a Asset) assetView {
	return assetView{Asset: a, PostedDepreciation: a.PostedDepreciation(), BookValue: a.BookValue()}
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
