package ledgertest

import (
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Seeded businesses.
const (
	BusinessMain   int64 = 1
	BusinessBranch int64 = 2
)

// Accounts of BusinessMain.
const (
	Receivable        int64 = 1
	Revenue           int64 = 2
	Cash              int64 = 3
	Payable           int64 = 4
	Expense           int64 = 5
	Capital           int64 = 6
	Equipment         int64 = 7
	AccumDepreciation int64 = 8
	DepreciationExp   int64 = 9
	MandatorySavings  int64 = 10
	VoluntarySavings  int64 = 11
	Bank              int64 = 12
	CashHead          int64 = 13
	Drawing           int64 = 14
)

// Accounts of BusinessBranch; codes match their BusinessMain counterparts.
const (
	BranchCash    int64 = 101
	BranchRevenue int64 = 102
	BranchCapital int64 = 103
	BranchExpense int64 = 104
)

// Category ids, in the order the seed migration inserts them.
const (
	CatCash int64 = iota + 1
	CatReceivable
	CatInventory
	CatFixedAsset
	CatAccumDepreciation
	CatPayable
	CatSavings
	CatLoan
	CatCapital
	CatDrawing
	CatRevenue
	CatExpense
)

// Categories mirrors the seeded account categories.
func Categories() []accounts.Category {
	activity := func(a accounts.CashFlowActivity) *accounts.CashFlowActivity { return &a }
	return []accounts.Category{
		{ID: CatCash, Code: "CASH", Name: "Cash and Bank", AccountType: accounts.AccountTypeAsset, NormalBalance: shared.Debit, IsCashEquivalent: true},
		{ID: CatReceivable, Code: "RECEIVABLE", Name: "Receivables", AccountType: accounts.AccountTypeAsset, NormalBalance: shared.Debit, CashFlowActivity: activity(accounts.ActivityOperating)},
		{ID: CatInventory, Code: "INVENTORY", Name: "Inventory", AccountType: accounts.AccountTypeAsset, NormalBalance: shared.Debit, CashFlowActivity: activity(accounts.ActivityOperating)},
		{ID: CatFixedAsset, Code: "FIXED_ASSET", Name: "Fixed Assets", AccountType: accounts.AccountTypeAsset, NormalBalance: shared.Debit, CashFlowActivity: activity(accounts.ActivityInvesting)},
		{ID: CatAccumDepreciation, Code: "ACCUM_DEPR", Name: "Accumulated Depreciation", AccountType: accounts.AccountTypeAsset, NormalBalance: shared.Credit, CashFlowActivity: activity(accounts.ActivityInvesting)},
		{ID: CatPayable, Code: "PAYABLE", Name: "Payables", AccountType: accounts.AccountTypeLiability, NormalBalance: shared.Credit, CashFlowActivity: activity(accounts.ActivityOperating)},
		{ID: CatSavings, Code: "SAVINGS", Name: "Member Savings", AccountType: accounts.AccountTypeLiability, NormalBalance: shared.Credit, CashFlowActivity: activity(accounts.ActivityFinancing)},
		{ID: CatLoan, Code: "LOAN", Name: "Long-term Loans", AccountType: accounts.AccountTypeLiability, NormalBalance: shared.Credit, CashFlowActivity: activity(accounts.ActivityFinancing)},
		{ID: CatCapital, Code: "CAPITAL", Name: "Capital", AccountType: accounts.AccountTypeEquity, NormalBalance: shared.Credit, CashFlowActivity: activity(accounts.ActivityFinancing)},
		{ID: CatDrawing, Code: "DRAWING", Name: "Drawings", AccountType: accounts.AccountTypeEquity, NormalBalance: shared.Debit, CashFlowActivity: activity(accounts.ActivityFinancing)},
		{ID: CatRevenue, Code: "REVENUE", Name: "Revenue", AccountType: accounts.AccountTypeRevenue, NormalBalance: shared.Credit, CashFlowActivity: activity(accounts.ActivityOperating)},
		{ID: CatExpense, Code: "EXPENSE", Name: "Operating Expenses", AccountType: accounts.AccountTypeExpense, NormalBalance: shared.Debit, CashFlowActivity: activity(accounts.ActivityOperating)},
	}
}

// Seeded returns a store with two businesses and a small chart each.
func Seeded() *Store {
	s := New()
	s.AddBusiness(BusinessMain, "MAIN", "Koperasi Maju")
	s.AddBusiness(BusinessBranch, "BRANCH", "Koperasi Maju Cabang")
	for _, cat := range Categories() {
		s.AddCategory(cat)
	}
	cat := func(id int64) *int64 { return &id }
	parent := CashHead
	for _, acc := range []accounts.Account{
		{ID: CashHead, Code: "1-0000", Name: "Cash and Bank", CategoryID: cat(CatCash)},
		{ID: Cash, Code: "1-1000", Name: "Cash on Hand", ParentID: &parent, CategoryID: cat(CatCash)},
		{ID: Bank, Code: "1-1010", Name: "Bank BRI", ParentID: &parent, CategoryID: cat(CatCash)},
		{ID: Receivable, Code: "1-1100", Name: "Accounts Receivable", CategoryID: cat(CatReceivable)},
		{ID: Equipment, Code: "1-2000", Name: "Equipment", CategoryID: cat(CatFixedAsset)},
		{ID: AccumDepreciation, Code: "1-2900", Name: "Accumulated Depreciation", CategoryID: cat(CatAccumDepreciation)},
		{ID: Payable, Code: "2-1000", Name: "Accounts Payable", CategoryID: cat(CatPayable)},
		{ID: MandatorySavings, Code: "2-2000", Name: "Mandatory Savings", CategoryID: cat(CatSavings)},
		{ID: VoluntarySavings, Code: "2-2100", Name: "Voluntary Savings", CategoryID: cat(CatSavings)},
		{ID: Capital, Code: "3-1000", Name: "Paid-in Capital", CategoryID: cat(CatCapital)},
		{ID: Drawing, Code: "3-2000", Name: "Owner Drawings", CategoryID: cat(CatDrawing)},
		{ID: Revenue, Code: "4-1000", Name: "Sales Revenue", CategoryID: cat(CatRevenue)},
		{ID: Expense, Code: "5-1000", Name: "Operating Expense", CategoryID: cat(CatExpense)},
		{ID: DepreciationExp, Code: "5-2000", Name: "Depreciation Expense", CategoryID: cat(CatExpense)},
	} {
		acc.BusinessID = BusinessMain
		acc.IsActive = true
		s.AddAccount(acc)
	}
	for _, acc := range []accounts.Account{
		{ID: BranchCash, Code: "1-1000", Name: "Cash on Hand", CategoryID: cat(CatCash)},
		{ID: BranchRevenue, Code: "4-1000", Name: "Sales Revenue", CategoryID: cat(CatRevenue)},
		{ID: BranchCapital, Code: "3-1000", Name: "Paid-in Capital", CategoryID: cat(CatCapital)},
		{ID: BranchExpense, Code: "5-1000", Name: "Operating Expense", CategoryID: cat(CatExpense)},
	} {
		acc.BusinessID = BusinessBranch
		acc.IsActive = true
		s.AddAccount(acc)
	}
	return s
}

// Settings returns finance settings pointing at the seeded accounts.
func Settings() mappings.Static {
	id := func(v int64) *int64 { return &v }
	return mappings.Static{
		BusinessMain: {
			BusinessID:          BusinessMain,
			ReceivableAccountID: id(Receivable),
			PayableAccountID:    id(Payable),
			CashAccountID:       id(Cash),
		},
		BusinessBranch: {
			BusinessID:    BusinessBranch,
			CashAccountID: id(BranchCash),
		},
	}
}
