package cashbank

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type auditSpy struct {
	logs []internalShared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService() (*Service, *ledgertest.Store, *auditSpy) {
	store := ledgertest.Seeded()
	audit := &auditSpy{}
	svc := NewService(store, audit, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC) })
	return svc, store, audit
}

func TestReceiptDebitsDefaultCash(t *testing.T) {
	svc, store, audit := newService()
	settings := ledgertest.Settings()[ledgertest.BusinessMain]
	entry, err := svc.PostCashMovement(context.Background(), settings, MovementInput{
		BusinessID: ledgertest.BusinessMain,
		Direction:  "in",
		Date:       time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Lines: []journals.LineInput{
			{AccountID: ledgertest.Revenue, Amount: amt("150000")},
			{AccountID: ledgertest.Capital, Amount: amt("50000")},
		},
	})
	require.NoError(t, err)
	require.Len(t, entry.Lines, 3)
	require.Equal(t, ledgertest.Cash, entry.Lines[0].AccountID)
	require.Equal(t, shared.Debit, entry.Lines[0].EntryType)
	require.True(t, entry.Lines[0].Amount.Equal(amt("200000")))
	require.Contains(t, entry.Description, "200.000,00")
	require.Len(t, store.Entries(), 1)
	require.Equal(t, "cash.in", audit.logs[0].Action)
}

func TestDisbursementUsesOverrideAndKey(t *testing.T) {
	svc, store, _ := newService()
	settings := ledgertest.Settings()[ledgertest.BusinessMain]
	bank := ledgertest.Bank
	in := MovementInput{
		BusinessID:     ledgertest.BusinessMain,
		Direction:      posting.Outbound,
		CashAccountID:  &bank,
		Description:    "Electricity",
		IdempotencyKey: "req-881",
		Lines:          []journals.LineInput{{AccountID: ledgertest.Expense, Amount: amt("350000")}},
	}
	entry, err := svc.PostCashMovement(context.Background(), settings, in)
	require.NoError(t, err)
	require.Equal(t, ledgertest.Bank, entry.Lines[0].AccountID)
	require.Equal(t, shared.Credit, entry.Lines[0].EntryType)
	require.Equal(t, posting.ModuleCash, entry.SourceModule)
	require.Equal(t, time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), entry.EntryDate)

	_, err = svc.PostCashMovement(context.Background(), settings, in)
	require.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
	require.Len(t, store.Entries(), 1)
}

func TestMovementPreconditions(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()
	lines := []journals.LineInput{{AccountID: ledgertest.BranchRevenue, Amount: amt("10")}}

	_, err := svc.PostCashMovement(ctx, ledgertest.Settings()[ledgertest.BusinessMain], MovementInput{
		BusinessID: ledgertest.BusinessBranch, Direction: posting.Inbound, Lines: lines,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostCashMovement(ctx, mappings.BusinessFinanceSettings{BusinessID: 3}, MovementInput{
		BusinessID: 3, Direction: posting.Inbound, Lines: lines,
	})
	require.ErrorIs(t, err, shared.ErrMissingDefaultAccount)

	_, err = svc.PostCashMovement(ctx, ledgertest.Settings()[ledgertest.BusinessMain], MovementInput{
		BusinessID: ledgertest.BusinessMain, Direction: posting.Inbound,
		Lines: []journals.LineInput{{AccountID: ledgertest.BranchRevenue, Amount: amt("10")}},
	})
	require.ErrorIs(t, err, shared.ErrNotPostingAccount)
	require.Empty(t, store.Entries())
}

func TestHandlerPostsMovement(t *testing.T) {
	svc, _, _ := newService()
	r := chi.NewRouter()
	r.Route("/cash-movements", NewHandler(nil, svc, ledgertest.Settings()).MountRoutes)

	body := `{"business_id":1,"direction":"OUT","date":"2025-04-01","lines":[{"account_id":5,"amount":"75000"}]}`
	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/cash-movements", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "6f1c1a2e-0d4b-4c8e-9a51-2b7d1f0c9e11")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}
	rr := post()
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"journal_entry_id":1`)
	require.Equal(t, http.StatusConflict, post().Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cash-movements", strings.NewReader(`{"business_id":1,"direction":"SIDEWAYS","lines":[{"account_id":5,"amount":"1"}]}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
