package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func newService() (*Service, *ledgertest.Store) {
	store := ledgertest.Seeded()
	svc := NewService(newMemoryRepo(store), nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC) })
	return svc, store
}

func vehicleInput() AssetInput {
	return AssetInput{
		BusinessID:      ledgertest.BusinessMain,
		Code:            "veh-01",
		Name:            "Delivery van",
		AcquisitionDate: date(2025, 1, 10),
		AcquisitionCost: amt("25000000"),
		AssetAccountID:  ledgertest.Equipment,
		Setting: &SettingInput{
			StartDate:            date(2025, 1, 15),
			UsefulLifeMonths:     60,
			SalvageValue:         amt("1000000"),
			ExpenseAccountID:     ledgertest.DepreciationExp,
			AccumulatedAccountID: ledgertest.AccumDepreciation,
		},
	}
}

func TestGenerateScheduleStraightLine(t *testing.T) {
	svc, _ := newService()
	asset, err := svc.CreateAsset(context.Background(), vehicleInput())
	require.NoError(t, err)
	require.Equal(t, "VEH-01", asset.Code)
	require.Len(t, asset.Schedule, 60)

	total := decimal.Zero
	for i, row := range asset.Schedule {
		require.Equal(t, i+1, row.PeriodNo)
		require.Equal(t, StatusPending, row.Status)
		require.True(t, row.Amount.Equal(amt("400000")), "period %d", row.PeriodNo)
		total = total.Add(row.Amount)
	}
	require.True(t, total.Equal(amt("24000000")))
	require.Equal(t, date(2025, 1, 31), asset.Schedule[0].Date)
	require.Equal(t, date(2025, 2, 28), asset.Schedule[1].Date)
	require.Equal(t, date(2029, 12, 31), asset.Schedule[59].Date)
	require.True(t, asset.Schedule[59].BookValue.Equal(amt("1000000")))
}

func TestGenerateScheduleAbsorbsResidual(t *testing.T) {
	asset := Asset{ID: 1, AcquisitionCost: amt("1000")}
	setting := Setting{StartDate: date(2024, 11, 30), UsefulLifeMonths: 3, ExpenseAccountID: 1, AccumulatedAccountID: 2}
	rows, err := GenerateSchedule(asset, setting)
	require.NoError(t, err)
	require.True(t, rows[0].Amount.Equal(amt("333.33")))
	require.True(t, rows[1].Amount.Equal(amt("333.33")))
	require.True(t, rows[2].Amount.Equal(amt("333.34")))
	require.Equal(t, date(2025, 1, 31), rows[2].Date)

	// Rounding up must not overshoot the depreciable amount.
	rows, err = GenerateSchedule(Asset{AcquisitionCost: amt("0.05")}, Setting{StartDate: date(2025, 1, 1), UsefulLifeMonths: 10, ExpenseAccountID: 1, AccumulatedAccountID: 2})
	require.NoError(t, err)
	total := decimal.Zero
	for _, row := range rows {
		require.False(t, row.Amount.IsNegative())
		total = total.Add(row.Amount)
	}
	require.True(t, total.Equal(amt("0.05")))
}

func TestSettingValidation(t *testing.T) {
	asset := Asset{AcquisitionCost: amt("1000")}
	base := Setting{StartDate: date(2025, 1, 1), UsefulLifeMonths: 12, ExpenseAccountID: 1, AccumulatedAccountID: 2}
	cases := map[string]func(s *Setting){
		"zero life":        func(s *Setting) { s.UsefulLifeMonths = 0 },
		"negative salvage": func(s *Setting) { s.SalvageValue = amt("-1") },
		"salvage too high": func(s *Setting) { s.SalvageValue = amt("1000.01") },
		"no start date":    func(s *Setting) { s.StartDate = time.Time{} },
		"same accounts":    func(s *Setting) { s.AccumulatedAccountID = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := base
			mutate(&s)
			_, err := GenerateSchedule(asset, s)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestRunDepreciationPostsAndReducesBookValue(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	asset, err := svc.CreateAsset(ctx, vehicleInput())
	require.NoError(t, err)

	for _, row := range asset.Schedule[:12] {
		result, err := svc.RunDepreciation(ctx, row.ID)
		require.NoError(t, err)
		require.NotNil(t, result.JournalEntryID)
	}
	asset, err = svc.Get(ctx, asset.ID)
	require.NoError(t, err)
	require.True(t, asset.BookValue().Equal(amt("20200000")))

	entry, ok := store.Entry(*asset.Schedule[0].JournalEntryID)
	require.True(t, ok)
	require.Equal(t, posting.ModuleDepreciation, entry.SourceModule)
	require.Equal(t, date(2025, 1, 31), entry.EntryDate)
	require.Equal(t, ledgertest.DepreciationExp, entry.Lines[0].AccountID)
	require.Equal(t, shared.Debit, entry.Lines[0].EntryType)
	require.Equal(t, ledgertest.AccumDepreciation, entry.Lines[1].AccountID)
	require.Equal(t, shared.Credit, entry.Lines[1].EntryType)

	_, err = svc.RunDepreciation(ctx, asset.Schedule[0].ID)
	require.ErrorIs(t, err, shared.ErrDepreciationPosted)

	_, err = svc.UpdateSetting(ctx, asset.ID, *vehicleInput().Setting)
	var posted *shared.AssetHasPostedDepreciationError
	require.ErrorAs(t, err, &posted)
	require.Equal(t, 12, posted.Posted)
	require.ErrorIs(t, svc.DeleteAsset(ctx, asset.ID), shared.ErrAssetHasPostedDepreciation)
	require.Len(t, store.Entries(), 12)
}

func TestDeletingEntryReopensPeriod(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	asset, err := svc.CreateAsset(ctx, vehicleInput())
	require.NoError(t, err)
	row := asset.Schedule[0]

	result, err := svc.RunDepreciation(ctx, row.ID)
	require.NoError(t, err)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		return tx.DeleteEntry(ctx, *result.JournalEntryID)
	}))

	asset, err = svc.Get(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, asset.Schedule[0].Status)
	require.Nil(t, asset.Schedule[0].JournalEntryID)

	_, err = svc.RunDepreciation(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, store.Entries(), 1)
}

func TestUpdateSettingRegeneratesPendingSchedule(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	in := vehicleInput()
	in.Setting = nil
	asset, err := svc.CreateAsset(ctx, in)
	require.NoError(t, err)
	require.Empty(t, asset.Schedule)

	setting := *vehicleInput().Setting
	setting.UsefulLifeMonths = 48
	asset, err = svc.UpdateSetting(ctx, asset.ID, setting)
	require.NoError(t, err)
	require.Len(t, asset.Schedule, 48)
	require.True(t, asset.Schedule[0].Amount.Equal(amt("500000")))

	setting.UsefulLifeMonths = 24
	asset, err = svc.UpdateSetting(ctx, asset.ID, setting)
	require.NoError(t, err)
	stored, err := svc.Get(ctx, asset.ID)
	require.NoError(t, err)
	require.Len(t, stored.Schedule, 24)

	setting.ExpenseAccountID = ledgertest.BranchExpense
	_, err = svc.UpdateSetting(ctx, asset.ID, setting)
	require.ErrorIs(t, err, shared.ErrNotPostingAccount)
	stored, err = svc.Get(ctx, asset.ID)
	require.NoError(t, err)
	require.Len(t, stored.Schedule, 24)

	require.NoError(t, svc.DeleteAsset(ctx, asset.ID))
	_, err = svc.Get(ctx, asset.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRunDueDepreciation(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	_, err := svc.CreateAsset(ctx, vehicleInput())
	require.NoError(t, err)

	result, err := svc.RunDueDepreciation(ctx, ledgertest.BusinessMain, date(2025, 3, 31))
	require.NoError(t, err)
	require.Len(t, result.Posted, 3)
	require.Empty(t, result.Failed)
	require.Equal(t, []int{1, 2, 3}, []int{result.Posted[0].PeriodNo, result.Posted[1].PeriodNo, result.Posted[2].PeriodNo})

	result, err = svc.RunDueDepreciation(ctx, ledgertest.BusinessMain, date(2025, 3, 31))
	require.NoError(t, err)
	require.Empty(t, result.Posted)
	require.Len(t, store.Entries(), 3)

	_, err = svc.RunDueDepreciation(ctx, 0, time.Time{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

// racingRepo posts the oldest due row through a second service after the
// due list was read, like a concurrent run-due request would.
type racingRepo struct {
	*memoryRepo
	rival *Service
}

func (r racingRepo) DueSchedules(ctx context.Context, businessID int64, asOf time.Time) ([]ScheduleRow, error) {
	due, err := r.memoryRepo.DueSchedules(ctx, businessID, asOf)
	if err != nil || len(due) == 0 {
		return due, err
	}
	if _, err := r.rival.RunDepreciation(ctx, due[0].ID); err != nil {
		return nil, err
	}
	return due, nil
}

func TestRunDueDepreciationSkipsRowsPostedConcurrently(t *testing.T) {
	store := ledgertest.Seeded()
	repo := newMemoryRepo(store)
	rival := NewService(repo, nil, nil)
	svc := NewService(racingRepo{memoryRepo: repo, rival: rival}, nil, nil)
	ctx := context.Background()
	_, err := svc.CreateAsset(ctx, vehicleInput())
	require.NoError(t, err)

	result, err := svc.RunDueDepreciation(ctx, ledgertest.BusinessMain, date(2025, 3, 31))
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	require.Len(t, result.Posted, 2)
	require.Equal(t, 2, result.Posted[0].PeriodNo)
	require.Len(t, store.Entries(), 3)
}

func TestHandlerAssetLifecycle(t *testing.T) {
	svc, _ := newService()
	r := chi.NewRouter()
	r.Route("/assets", NewHandler(nil, svc).MountRoutes)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rr
	}

	rr := do(http.MethodPost, "/assets", `{"business_id":1,"code":"PC-7","name":"Workstation","acquisition_date":"2025-01-02","acquisition_cost":"12000000","asset_account_id":7,
		"depreciation_setting":{"depreciation_start_date":"2025-01-02","useful_life_months":24,"salvage_value":"0","expense_account_id":9,"accumulated_account_id":8}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"book_value":"12000000"`)

	asset, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	runPath := "/assets/schedules/" + strconv.FormatInt(asset.Schedule[0].ID, 10) + "/run"

	require.Equal(t, http.StatusCreated, do(http.MethodPost, runPath, "").Code)
	require.Equal(t, http.StatusConflict, do(http.MethodPost, runPath, "").Code)
	require.Equal(t, http.StatusConflict, do(http.MethodDelete, "/assets/1", "").Code)
	require.Equal(t, http.StatusConflict, do(http.MethodPut, "/assets/1/depreciation-setting",
		`{"depreciation_start_date":"2025-02-01","useful_life_months":12,"expense_account_id":9,"accumulated_account_id":8}`).Code)

	rr = do(http.MethodGet, "/assets/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"book_value":"11500000"`)

	rr = do(http.MethodPost, "/assets/depreciation/run-due", `{"business_id":1,"as_of":"2025-03-31"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"period_no":3`)

	require.Equal(t, http.StatusNotFound, do(http.MethodGet, "/assets/99", "").Code)
	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/assets", `{"business_id":1}`).Code)
}
