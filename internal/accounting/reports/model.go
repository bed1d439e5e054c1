// Package reports recomputes balances, ledgers and financial statements from
// raw journal lines.
//
// Every statement walks the leaf accounts one by one and skips accounts whose
// balance is zero. Consolidated variants build one report per business and
// merge the results by account code.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Kind tags every report type.
type Kind string

const (
	KindAccountBalance  Kind = "account-balance"
	KindAccountLedger   Kind = "account-ledger"
	KindGeneralLedger   Kind = "general-ledger"
	KindTrialBalance    Kind = "trial-balance"
	KindIncomeStatement Kind = "income-statement"
	KindBalanceSheet    Kind = "balance-sheet"
	KindCashFlow        Kind = "cash-flow"
	KindEquityChange    Kind = "equity-change"
	KindFinancialRatios Kind = "financial-ratios"
	KindIntegrity       Kind = "integrity"
)

// Report is implemented by every typed report.
type Report interface {
	Kind() Kind
}

// Business identifies one reporting entity.
type Business struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// AccountInfo is the read model of an account joined with its category.
type AccountInfo struct {
	ID          int64              `json:"id"`
	BusinessID  int64              `json:"business_id"`
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	ParentID    *int64             `json:"parent_id,omitempty"`
	HasChildren bool               `json:"has_children"`
	IsActive    bool               `json:"is_active"`
	Category    *accounts.Category `json:"category,omitempty"`
}

// NormalBalance is the category's normal side; uncategorized accounts read as DEBIT.
func (a AccountInfo) NormalBalance() shared.EntryType {
	if a.Category == nil {
		return shared.Debit
	}
	return a.Category.NormalBalance
}

// Type returns the category's account type or "" when uncategorized.
func (a AccountInfo) Type() accounts.AccountType {
	if a.Category == nil {
		return ""
	}
	return a.Category.AccountType
}

// Contra reports whether the account's normal side differs from its type's natural side.
func (a AccountInfo) Contra() bool {
	if a.Category == nil {
		return false
	}
	return a.Category.NormalBalance != a.Category.AccountType.NaturalBalance()
}

// Totals are raw debit and credit sums.
type Totals struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Add returns the element-wise sum.
func (t Totals) Add(o Totals) Totals {
	return Totals{Debit: t.Debit.Add(o.Debit), Credit: t.Credit.Add(o.Credit)}
}

// IsZero reports whether both sides are zero.
func (t Totals) IsZero() bool {
	return t.Debit.IsZero() && t.Credit.IsZero()
}

// Net is debit minus credit.
func (t Totals) Net() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// PostingLine is one journal line joined with its entry header.
type PostingLine struct {
	EntryID     int64            `json:"entry_id"`
	LineID      int64            `json:"line_id"`
	BusinessID  int64            `json:"business_id"`
	AccountID   int64            `json:"account_id"`
	Date        time.Time        `json:"date"`
	Description string           `json:"description"`
	Reference   string           `json:"reference,omitempty"`
	EntryType   shared.EntryType `json:"entry_type"`
	Amount      decimal.Decimal  `json:"amount"`
}

// UnbalancedEntry is an entry whose stored lines no longer balance.
type UnbalancedEntry struct {
	EntryID    int64           `json:"entry_id"`
	BusinessID int64           `json:"business_id"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
}

// AccountBalance is the balance of one account, head group or code group.
type AccountBalance struct {
	AccountID     int64            `json:"account_id,omitempty"`
	Code          string           `json:"code"`
	Name          string           `json:"name"`
	BusinessIDs   []int64          `json:"business_ids"`
	AsOf          time.Time        `json:"as_of"`
	NormalBalance shared.EntryType `json:"normal_balance"`
	Debit         decimal.Decimal  `json:"debit"`
	Credit        decimal.Decimal  `json:"credit"`
	Balance       decimal.Decimal  `json:"balance"`
}

// Kind implements Report.
func (AccountBalance) Kind() Kind { return KindAccountBalance }

// LedgerLine is one posting with the running balance after it.
type LedgerLine struct {
	Date        time.Time       `json:"date"`
	EntryID     int64           `json:"entry_id"`
	BusinessID  int64           `json:"business_id"`
	AccountID   int64           `json:"account_id"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// AccountLedger lists postings of one account, or of every leaf under a head
// account for a subsidiary ledger.
type AccountLedger struct {
	AccountID     int64            `json:"account_id,omitempty"`
	Code          string           `json:"code"`
	Name          string           `json:"name"`
	NormalBalance shared.EntryType `json:"normal_balance"`
	Subsidiary    bool             `json:"subsidiary"`
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	Beginning     decimal.Decimal  `json:"beginning_balance"`
	Lines         []LedgerLine     `json:"lines"`
	TotalDebit    decimal.Decimal  `json:"total_debit"`
	TotalCredit   decimal.Decimal  `json:"total_credit"`
	Ending        decimal.Decimal  `json:"ending_balance"`
}

// Kind implements Report.
func (AccountLedger) Kind() Kind { return KindAccountLedger }

// GeneralLedger holds one ledger per leaf code with activity or an opening balance.
type GeneralLedger struct {
	BusinessIDs []int64         `json:"business_ids"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Accounts    []AccountLedger `json:"accounts"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

// Kind implements Report.
func (GeneralLedger) Kind() Kind { return KindGeneralLedger }

// Line is one account row inside a statement section. Amount follows the
// account's own normal side; Contra lines reduce the section total.
type Line struct {
	AccountID int64           `json:"account_id,omitempty"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Contra    bool            `json:"contra,omitempty"`
	Synthetic bool            `json:"synthetic,omitempty"`
}

// Contribution is the line's effect on its section total.
func (l Line) Contribution() decimal.Decimal {
	if l.Contra {
		return l.Amount.Neg()
	}
	return l.Amount
}

// Section groups the lines of one account type.
type Section struct {
	Type  accounts.AccountType `json:"type"`
	Lines []Line               `json:"lines"`
	Total decimal.Decimal      `json:"total"`
}

// IncomeStatement reports revenue and expense movement within a range.
type IncomeStatement struct {
	BusinessIDs []int64         `json:"business_ids"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Revenue     Section         `json:"revenue"`
	Expenses    Section         `json:"expenses"`
	NetProfit   decimal.Decimal `json:"net_profit"`
}

// Kind implements Report.
func (IncomeStatement) Kind() Kind { return KindIncomeStatement }

// BalanceSheet reports positions as of a date. Equity carries a synthetic
// current-earnings line equal to all-time net profit up to AsOf.
type BalanceSheet struct {
	BusinessIDs               []int64         `json:"business_ids"`
	AsOf                      time.Time       `json:"as_of"`
	Assets                    Section         `json:"assets"`
	Liabilities               Section         `json:"liabilities"`
	Equity                    Section         `json:"equity"`
	CurrentEarnings           decimal.Decimal `json:"current_earnings"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"total_liabilities_and_equity"`
	CheckBalance              decimal.Decimal `json:"check_balance"`
	Balanced                  bool            `json:"balanced"`
}

// Kind implements Report.
func (BalanceSheet) Kind() Kind { return KindBalanceSheet }

// CashFlowSection groups counter-account cash effects of one activity.
type CashFlowSection struct {
	Activity accounts.CashFlowActivity `json:"activity"`
	Lines    []Line                    `json:"lines"`
	Total    decimal.Decimal           `json:"total"`
}

// CashFlowStatement explains the change in cash-equivalent balances.
type CashFlowStatement struct {
	BusinessIDs  []int64         `json:"business_ids"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Beginning    decimal.Decimal `json:"beginning_cash"`
	Operating    CashFlowSection `json:"operating"`
	Investing    CashFlowSection `json:"investing"`
	Financing    CashFlowSection `json:"financing"`
	NetCashFlow  decimal.Decimal `json:"net_cash_flow"`
	Ending       decimal.Decimal `json:"ending_cash"`
	CheckBalance decimal.Decimal `json:"check_balance"`
	Balanced     bool            `json:"balanced"`
}

// Kind implements Report.
func (CashFlowStatement) Kind() Kind { return KindCashFlow }

// EquityChangeLine is the movement of one equity account within a range.
type EquityChangeLine struct {
	AccountID int64           `json:"account_id,omitempty"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Contra    bool            `json:"contra,omitempty"`
	Synthetic bool            `json:"synthetic,omitempty"`
	Beginning decimal.Decimal `json:"beginning"`
	Increase  decimal.Decimal `json:"increase"`
	Decrease  decimal.Decimal `json:"decrease"`
	Ending    decimal.Decimal `json:"ending"`
}

// EquityChangeStatement reports equity movement within a range.
type EquityChangeStatement struct {
	BusinessIDs    []int64            `json:"business_ids"`
	From           time.Time          `json:"from"`
	To             time.Time          `json:"to"`
	Lines          []EquityChangeLine `json:"lines"`
	TotalBeginning decimal.Decimal    `json:"total_beginning"`
	TotalIncrease  decimal.Decimal    `json:"total_increase"`
	TotalDecrease  decimal.Decimal    `json:"total_decrease"`
	TotalEnding    decimal.Decimal    `json:"total_ending"`
	CheckBalance   decimal.Decimal    `json:"check_balance"`
	Balanced       bool               `json:"balanced"`
}

// Kind implements Report.
func (EquityChangeStatement) Kind() Kind { return KindEquityChange }

// Ratio is nil when its denominator is zero; Note then says why.
type Ratio struct {
	Name  string           `json:"name"`
	Value *decimal.Decimal `json:"value"`
	Note  string           `json:"note,omitempty"`
}

// FinancialRatios derives standard ratios from the balance sheet at To and
// the income statement over From..To.
type FinancialRatios struct {
	BusinessIDs      []int64         `json:"business_ids"`
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	Revenue          decimal.Decimal `json:"revenue"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	Cash             decimal.Decimal `json:"cash"`
	Ratios           []Ratio         `json:"ratios"`
}

// Kind implements Report.
func (FinancialRatios) Kind() Kind { return KindFinancialRatios }

// Ratio returns the named ratio.
func (f FinancialRatios) Ratio(name string) (Ratio, bool) {
	for _, r := range f.Ratios {
		if r.Name == name {
			return r, true
		}
	}
	return Ratio{}, false
}

// BusinessReport pairs a report with the business it was built for.
type BusinessReport[T Report] struct {
	Business Business `json:"business"`
	Report   T        `json:"report"`
}

// Consolidated is a merged report plus the per-business breakdown.
type Consolidated[T Report] struct {
	Total      T                   `json:"total"`
	Businesses []BusinessReport[T] `json:"businesses"`
}

// Kind implements Report.
func (c Consolidated[T]) Kind() Kind { return c.Total.Kind() }
