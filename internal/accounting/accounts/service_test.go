package accounts_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func ptr[T any](v T) *T { return &v }

func newService() (*accounts.Service, *ledgertest.Store) {
	store := ledgertest.Seeded()
	return accounts.NewService(store.Chart(), nil, nil, nil), store
}

func TestCreateInheritsParentCategory(t *testing.T) {
	svc, _ := newService()
	acc, err := svc.Create(context.Background(), accounts.CreateInput{
		BusinessID: ledgertest.BusinessMain, Code: " 1-1020 ", Name: "Bank Mandiri", ParentID: ptr(ledgertest.CashHead),
	})
	require.NoError(t, err)
	require.Equal(t, "1-1020", acc.Code)
	require.NotNil(t, acc.CategoryID)
	require.Equal(t, ledgertest.CatCash, *acc.CategoryID)
	require.True(t, acc.IsActive)
}

func TestCreateRejectsConflicts(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, accounts.CreateInput{BusinessID: ledgertest.BusinessMain, Code: "1-1000", Name: "Petty cash"})
	var dup *shared.DuplicateCodeError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "1-1000", dup.Code)

	_, err = svc.Create(ctx, accounts.CreateInput{BusinessID: ledgertest.BusinessBranch, Code: "1-1100", Name: "Receivable"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, accounts.CreateInput{
		BusinessID: ledgertest.BusinessMain, Code: "1-1030", Name: "Wrong", ParentID: ptr(ledgertest.CashHead),
		CategoryID: ptr(ledgertest.CatReceivable),
	})
	var mismatch *shared.CategoryMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, ledgertest.CatCash, mismatch.ParentCategoryID)

	_, err = svc.Create(ctx, accounts.CreateInput{BusinessID: ledgertest.BusinessMain, Code: "", Name: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, accounts.CreateInput{
		BusinessID: ledgertest.BusinessMain, Code: "1-1040", Name: "Foreign parent", ParentID: ptr(ledgertest.BranchCash),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLeafWithPostingsCannotBecomeHead(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	_, err := store.Post(ctx, journals.EntryInput{
		BusinessID: ledgertest.BusinessMain, Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Lines: []journals.LineInput{
			{AccountID: ledgertest.Receivable, EntryType: shared.Debit, Amount: decimal.NewFromInt(10)},
			{AccountID: ledgertest.Revenue, EntryType: shared.Credit, Amount: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, accounts.CreateInput{
		BusinessID: ledgertest.BusinessMain, Code: "1-1101", Name: "Receivable sub", ParentID: ptr(ledgertest.Receivable),
	})
	require.ErrorIs(t, err, shared.ErrAccountInUse)
}

func TestUpdateGuardsTreeShape(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Update(ctx, ledgertest.CashHead, accounts.UpdateInput{ParentID: ptr(ledgertest.Cash)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Update(ctx, ledgertest.Cash, accounts.UpdateInput{ParentID: ptr(ledgertest.Cash)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Update(ctx, ledgertest.Bank, accounts.UpdateInput{Code: ptr("1-1000")})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	moved, err := svc.Update(ctx, ledgertest.Bank, accounts.UpdateInput{ClearParent: true, Name: ptr("Bank BRI Giro")})
	require.NoError(t, err)
	require.Nil(t, moved.ParentID)
	require.Equal(t, "Bank BRI Giro", moved.Name)

	inactive, err := svc.Update(ctx, ledgertest.VoluntarySavings, accounts.UpdateInput{IsActive: ptr(false)})
	require.NoError(t, err)
	require.False(t, inactive.IsActive)
}

func TestDeleteRequiresUnusedLeaf(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	err := svc.Delete(ctx, ledgertest.CashHead)
	var inUse *shared.AccountInUseError
	require.ErrorAs(t, err, &inUse)
	require.Contains(t, inUse.Reason, "child")

	_, err = store.Post(ctx, journals.EntryInput{
		BusinessID: ledgertest.BusinessMain, Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Lines: []journals.LineInput{
			{AccountID: ledgertest.Expense, EntryType: shared.Debit, Amount: decimal.NewFromInt(10)},
			{AccountID: ledgertest.Cash, EntryType: shared.Credit, Amount: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, ledgertest.Cash), shared.ErrAccountInUse)

	require.NoError(t, svc.Delete(ctx, ledgertest.Drawing))
	_, err = svc.Get(ctx, ledgertest.Drawing)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	posting, err := svc.List(ctx, accounts.ListFilter{BusinessID: ledgertest.BusinessMain, Kind: accounts.KindPost})
	require.NoError(t, err)
	for _, acc := range posting {
		require.NotEqual(t, ledgertest.CashHead, acc.ID)
	}

	heads, err := svc.List(ctx, accounts.ListFilter{BusinessID: ledgertest.BusinessMain, Kind: accounts.KindHead})
	require.NoError(t, err)
	var sawHead, sawChild bool
	for _, acc := range heads {
		sawHead = sawHead || acc.ID == ledgertest.CashHead
		sawChild = sawChild || acc.ID == ledgertest.Cash
	}
	require.True(t, sawHead)
	require.False(t, sawChild)

	equity, err := svc.List(ctx, accounts.ListFilter{BusinessID: ledgertest.BusinessMain, AccountType: accounts.AccountTypeEquity})
	require.NoError(t, err)
	require.Len(t, equity, 2)

	found, err := svc.List(ctx, accounts.ListFilter{Search: "bri"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	cats, err := svc.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, len(ledgertest.Categories()))
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, internalShared.AuditLog) error {
	return errors.New("audit store down")
}

type chartObserver struct {
	modules []string
}

func (o *chartObserver) LedgerChanged(_ context.Context, module string, _ int) {
	o.modules = append(o.modules, module)
}

func TestChartEditsNotifyAndLogAuditFailures(t *testing.T) {
	store := ledgertest.Seeded()
	obs := &chartObserver{}
	var buf bytes.Buffer
	svc := accounts.NewService(store.Chart(), failingAudit{}, obs, slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	acc, err := svc.Create(ctx, accounts.CreateInput{BusinessID: ledgertest.BusinessMain, Code: "6-9000", Name: "Suspense", CategoryID: ptr(ledgertest.CatExpense)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, acc.ID, accounts.UpdateInput{Name: ptr("Suspense Expense")})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, acc.ID))

	require.Equal(t, []string{accounts.ModuleChart, accounts.ModuleChart, accounts.ModuleChart}, obs.modules)
	require.Contains(t, buf.String(), "audit account change")
	require.Contains(t, buf.String(), "audit store down")

	_, err = svc.Create(ctx, accounts.CreateInput{BusinessID: ledgertest.BusinessMain, Code: "6-9000", Name: ""})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, obs.modules, 3)
}
