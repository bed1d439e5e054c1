package arap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
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
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type observerSpy struct {
	mu      sync.Mutex
	modules []string
}

func (o *observerSpy) LedgerChanged(_ context.Context, module string, entries int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 0; i < entries; i++ {
		o.modules = append(o.modules, module)
	}
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	svc      *Service
	store    *ledgertest.Store
	obs      *observerSpy
	settings mappings.Static
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := ledgertest.Seeded()
	obs := &observerSpy{}
	svc := NewService(newMemoryRepo(store), obs, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) })
	return fixture{svc: svc, store: store, obs: obs, settings: ledgertest.Settings()}
}

func (f fixture) main() mappings.BusinessFinanceSettings {
	return f.settings[ledgertest.BusinessMain]
}

func invoiceInput(total string) DocumentInput {
	return DocumentInput{
		Kind: KindInvoice, BusinessID: ledgertest.BusinessMain, ContactID: 7,
		IssueDate: date(1, 10), DueDate: date(2, 9),
		Items: []ItemInput{{AccountID: ledgertest.Revenue, Description: "Consulting", Amount: amt(total)}},
	}
}

func requireLine(t *testing.T, line journals.JournalLine, account int64, side shared.EntryType, amount string) {
	t.Helper()
	require.Equal(t, account, line.AccountID)
	require.Equal(t, side, line.EntryType)
	require.Truef(t, line.Amount.Equal(amt(amount)), "amount %s, want %s", line.Amount, amount)
}

func TestInvoiceWithInitialPaymentSettlesInTwoSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := invoiceInput("600000")
	in.InitialPayment = &PaymentInput{Amount: amt("200000")}
	doc, err := f.svc.PostDocument(ctx, f.main(), in)
	require.NoError(t, err)
	require.Equal(t, "INV-00001", doc.Number)
	require.Equal(t, StatusPartiallyPaid, doc.Status)
	require.True(t, doc.PaidAmount.Equal(amt("200000")))
	require.NotNil(t, doc.JournalEntryID)

	entries := f.store.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, posting.ModuleInvoice, entries[0].SourceModule)
	requireLine(t, entries[0].Lines[0], ledgertest.Receivable, shared.Debit, "600000")
	requireLine(t, entries[0].Lines[1], ledgertest.Revenue, shared.Credit, "600000")
	require.Equal(t, posting.ModuleReceipt, entries[1].SourceModule)
	requireLine(t, entries[1].Lines[0], ledgertest.Cash, shared.Debit, "200000")
	requireLine(t, entries[1].Lines[1], ledgertest.Receivable, shared.Credit, "200000")
	require.Equal(t, date(1, 10), entries[1].EntryDate)

	doc, payment, err := f.svc.ApplyPayment(ctx, f.main(), KindInvoice, doc.ID, PaymentInput{Date: date(2, 1), Amount: amt("400000")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, doc.Status)
	require.True(t, doc.PaidAmount.Equal(amt("600000")))
	require.Equal(t, ledgertest.Cash, payment.PaymentAccountID)
	require.NotNil(t, payment.JournalEntryID)

	_, _, err = f.svc.ApplyPayment(ctx, f.main(), KindInvoice, doc.ID, PaymentInput{Amount: amt("1")})
	require.ErrorIs(t, err, shared.ErrOverpayment)
	var settled *shared.DocumentAlreadySettledError
	require.ErrorAs(t, err, &settled)
	require.Equal(t, doc.ID, settled.DocumentID)

	require.Len(t, f.store.Entries(), 3)
	require.Equal(t, []string{posting.ModuleInvoice, posting.ModuleInvoice, posting.ModuleInvoice}, f.obs.modules)

	stored, err := f.svc.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored.Payments, 2)
	require.Len(t, stored.Items, 1)
}

func TestConcurrentPaymentsSettleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.PostDocument(ctx, f.main(), invoiceInput("600000"))
	require.NoError(t, err)

	const callers = 6
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.svc.ApplyPayment(ctx, f.main(), KindInvoice, doc.ID, PaymentInput{Date: date(1, 20), Amount: amt("400000")})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		require.ErrorIs(t, err, shared.ErrOverpayment)
	}
	require.Equal(t, 1, won)

	stored, err := f.svc.Get(ctx, KindInvoice, doc.ID)
	require.NoError(t, err)
	require.True(t, stored.PaidAmount.Equal(amt("400000")), "paid %s", stored.PaidAmount)
	require.False(t, stored.PaidAmount.GreaterThan(stored.TotalAmount.Add(shared.Tolerance)))
	require.Equal(t, StatusPartiallyPaid, stored.Status)
	require.Len(t, stored.Payments, 1)
	require.Len(t, f.store.Entries(), 2)
}

func TestAutoNumberSkipsManualNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manual := invoiceInput("1000")
	manual.Number = "INV-00002"
	_, err := f.svc.PostDocument(ctx, f.main(), manual)
	require.NoError(t, err)

	first, err := f.svc.PostDocument(ctx, f.main(), invoiceInput("2000"))
	require.NoError(t, err)
	require.Equal(t, "INV-00001", first.Number)

	_, err = f.svc.Void(ctx, KindInvoice, first.ID)
	require.NoError(t, err)

	second, err := f.svc.PostDocument(ctx, f.main(), invoiceInput("3000"))
	require.NoError(t, err)
	require.Equal(t, "INV-00003", second.Number)
}

func TestBillOverpaymentLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.PostDocument(ctx, f.main(), DocumentInput{
		Kind: KindBill, BusinessID: ledgertest.BusinessMain, ContactID: 3, Number: "SUP-118",
		IssueDate: date(1, 5), DueDate: date(1, 20),
		Items: []ItemInput{{AccountID: ledgertest.Expense, Amount: amt("100000")}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, doc.Status)
	entries := f.store.Entries()
	requireLine(t, entries[0].Lines[0], ledgertest.Expense, shared.Debit, "100000")
	requireLine(t, entries[0].Lines[1], ledgertest.Payable, shared.Credit, "100000")

	bank := ledgertest.Bank
	doc, _, err = f.svc.ApplyPayment(ctx, f.main(), KindBill, doc.ID, PaymentInput{Date: date(1, 15), Amount: amt("60000"), PaymentAccountID: &bank})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, doc.Status)
	entries = f.store.Entries()
	requireLine(t, entries[1].Lines[0], ledgertest.Payable, shared.Debit, "60000")
	requireLine(t, entries[1].Lines[1], ledgertest.Bank, shared.Credit, "60000")

	_, _, err = f.svc.ApplyPayment(ctx, f.main(), KindBill, doc.ID, PaymentInput{Amount: amt("40000.50")})
	var over *shared.OverpaymentError
	require.ErrorAs(t, err, &over)
	require.True(t, over.Outstanding().Equal(amt("40000")))
	require.True(t, over.Amount.Equal(amt("40000.50")))
	require.Len(t, f.store.Entries(), 2)

	stored, err := f.svc.Get(ctx, KindBill, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored.Payments, 1)
	require.True(t, stored.PaidAmount.Equal(amt("60000")))

	doc, _, err = f.svc.ApplyPayment(ctx, f.main(), KindBill, doc.ID, PaymentInput{Amount: amt("40000")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, doc.Status)
}

func TestDraftIssueAndVoid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := invoiceInput("250000")
	in.Draft = true
	draft, err := f.svc.PostDocument(ctx, mappings.BusinessFinanceSettings{}, in)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, draft.Status)
	require.Nil(t, draft.JournalEntryID)
	require.Empty(t, f.store.Entries())

	_, _, err = f.svc.ApplyPayment(ctx, f.main(), KindInvoice, draft.ID, PaymentInput{Amount: amt("10")})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	issueDate := date(1, 12)
	issued, err := f.svc.Issue(ctx, f.main(), KindInvoice, draft.ID, &issueDate)
	require.NoError(t, err)
	require.Equal(t, StatusSent, issued.Status)
	require.Equal(t, issueDate, issued.IssueDate)
	require.Len(t, f.store.Entries(), 1)

	_, err = f.svc.Issue(ctx, f.main(), KindInvoice, draft.ID, nil)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	voided, err := f.svc.Void(ctx, KindInvoice, draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)
	require.Nil(t, voided.JournalEntryID)
	require.Empty(t, f.store.Entries())

	_, err = f.svc.Void(ctx, KindInvoice, draft.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	paid := invoiceInput("1000")
	paid.InitialPayment = &PaymentInput{Amount: amt("100")}
	doc, err := f.svc.PostDocument(ctx, f.main(), paid)
	require.NoError(t, err)
	_, err = f.svc.Void(ctx, KindInvoice, doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
	require.Len(t, f.store.Entries(), 2)
}

func TestMissingDefaultAccountFailsBeforeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := DocumentInput{
		Kind: KindInvoice, BusinessID: ledgertest.BusinessBranch, ContactID: 1, IssueDate: date(1, 3),
		Items: []ItemInput{{AccountID: ledgertest.BranchRevenue, Amount: amt("5000")}},
	}
	_, err := f.svc.PostDocument(ctx, f.settings[ledgertest.BusinessBranch], in)
	var missing *shared.MissingDefaultAccountError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, mappings.KeyReceivable, missing.Key)
	require.Equal(t, ledgertest.BusinessBranch, missing.BusinessID)

	docs, page, err := f.svc.List(ctx, ListFilter{Kind: KindInvoice})
	require.NoError(t, err)
	require.Empty(t, docs)
	require.Zero(t, page.Total)

	_, err = f.svc.PostDocument(ctx, f.main(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostDocumentRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]func(*DocumentInput){
		"unknown kind":   func(in *DocumentInput) { in.Kind = "QUOTE" },
		"no items":       func(in *DocumentInput) { in.Items = nil },
		"negative item":  func(in *DocumentInput) { in.Items[0].Amount = amt("-1") },
		"due before":     func(in *DocumentInput) { in.DueDate = date(1, 1) },
		"draft with pay": func(in *DocumentInput) { in.Draft, in.InitialPayment = true, &PaymentInput{Amount: amt("1")} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := invoiceInput("100")
			mutate(&in)
			_, err := f.svc.PostDocument(ctx, f.main(), in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	_, err := f.svc.PostDocument(ctx, f.main(), invoiceInput("100"))
	require.NoError(t, err)
	dup := invoiceInput("100")
	dup.Number = "INV-00001"
	_, err = f.svc.PostDocument(ctx, f.main(), dup)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, f.store.Entries(), 1)
}

func TestValidatePaymentIsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.PostDocument(ctx, f.main(), invoiceInput("300000"))
	require.NoError(t, err)

	check, err := f.svc.ValidatePayment(ctx, KindInvoice, doc.ID, amt("300000"))
	require.NoError(t, err)
	require.True(t, check.OK)
	require.True(t, check.Outstanding.Equal(amt("300000")))

	check, err = f.svc.ValidatePayment(ctx, KindInvoice, doc.ID, amt("300000.02"))
	require.NoError(t, err)
	require.False(t, check.OK)
	require.Contains(t, check.Reason, "exceeds")

	_, err = f.svc.ValidatePayment(ctx, KindInvoice, 404, amt("1"))
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Len(t, f.store.Entries(), 1)
}

func TestAgingBucketsOutstandingByDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := func(due time.Time, total, paid string) {
		in := invoiceInput(total)
		in.IssueDate, in.DueDate = date(1, 1), due
		if paid != "" {
			in.InitialPayment = &PaymentInput{Amount: amt(paid)}
		}
		_, err := f.svc.PostDocument(ctx, f.main(), in)
		require.NoError(t, err)
	}
	asOf := date(5, 31)
	post(date(6, 15), "100", "")    // not yet due
	post(date(5, 11), "200", "50")  // 20 days
	post(date(4, 1), "300", "")     // 60 days
	post(date(3, 2), "400", "")     // 90 days
	post(date(1, 15), "500", "")    // 136 days
	post(date(1, 15), "700", "700") // settled

	bucket, err := f.svc.Aging(ctx, KindInvoice, ledgertest.BusinessMain, asOf)
	require.NoError(t, err)
	require.True(t, bucket.Current.Equal(amt("100")))
	require.True(t, bucket.Bucket30.Equal(amt("150")))
	require.True(t, bucket.Bucket60.Equal(amt("300")))
	require.True(t, bucket.Bucket90.Equal(amt("400")))
	require.True(t, bucket.Bucket120.Equal(amt("500")))
	require.True(t, bucket.Total().Equal(amt("1450")))

	bills, err := f.svc.Aging(ctx, KindBill, ledgertest.BusinessMain, asOf)
	require.NoError(t, err)
	require.True(t, bills.Total().IsZero())
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.PostDocument(ctx, f.main(), invoiceInput("100"))
		require.NoError(t, err)
	}
	draft := invoiceInput("100")
	draft.Draft = true
	_, err := f.svc.PostDocument(ctx, f.main(), draft)
	require.NoError(t, err)

	docs, page, err := f.svc.List(ctx, ListFilter{Kind: KindInvoice, Status: StatusSent, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)

	_, _, err = f.svc.List(ctx, ListFilter{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandlerPostsAndValidates(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	r.Route("/invoices", NewHandler(nil, KindInvoice, f.svc, f.settings).MountRoutes)

	body := `{"business_id":1,"contact_id":9,"issue_date":"2025-01-10","due_date":"2025-02-09",
"items":[{"account_id":2,"description":"Training","amount":"600000"}],
"initial_payment":{"payment_date":"2025-01-10","amount":"200000"}}`
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var doc Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Equal(t, StatusPartiallyPaid, doc.Status)

	cases := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/invoices/1/payments/validate?amount=400000", "", http.StatusOK},
		{http.MethodGet, "/invoices/1/payments/validate?amount=abc", "", http.StatusBadRequest},
		{http.MethodPost, "/invoices/1/payments", `{"payment_date":"2025-02-01","amount":"500000"}`, http.StatusUnprocessableEntity},
		{http.MethodPost, "/invoices/1/payments", `{"payment_date":"2025-02-01","amount":"400000"}`, http.StatusCreated},
		{http.MethodPost, "/invoices/1/payments", `{"payment_date":"2025-02-02","amount":"1"}`, http.StatusConflict},
		{http.MethodPost, "/invoices/1/void", "", http.StatusUnprocessableEntity},
		{http.MethodGet, "/invoices/2", "", http.StatusNotFound},
		{http.MethodGet, "/invoices/aging?business_id=1&as_of=2025-03-01", "", http.StatusOK},
		{http.MethodGet, "/invoices?business_id=1", "", http.StatusOK},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		require.Equalf(t, tc.status, rr.Code, "%s %s: %s", tc.method, tc.path, rr.Body.String())
	}
}
