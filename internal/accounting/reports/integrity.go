package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TypeReconciliation compares the per-leaf walk with a single grouped
// aggregate for one account type, both signed by the type's natural side.
type TypeReconciliation struct {
	Type       accounts.AccountType `json:"type"`
	Walked     decimal.Decimal      `json:"walked"`
	Raw        decimal.Decimal      `json:"raw"`
	Difference decimal.Decimal      `json:"difference"`
}

// IntegrityReport lists ledger anomalies of one business.
type IntegrityReport struct {
	BusinessID int64                `json:"business_id"`
	AsOf       time.Time            `json:"as_of"`
	Types      []TypeReconciliation `json:"types"`
	Unbalanced []UnbalancedEntry    `json:"unbalanced_entries"`
	Consistent bool                 `json:"consistent"`
}

// Kind implements Report.
func (IntegrityReport) Kind() Kind { return KindIntegrity }

// Mismatches returns the types whose walk and aggregate disagree.
func (r IntegrityReport) Mismatches() []TypeReconciliation {
	var out []TypeReconciliation
	for _, t := range r.Types {
		if t.Difference.Abs().GreaterThan(shared.Tolerance) {
			out = append(out, t)
		}
	}
	return out
}

var reconciledTypes = []accounts.AccountType{
	accounts.AccountTypeAsset,
	accounts.AccountTypeLiability,
	accounts.AccountTypeEquity,
	accounts.AccountTypeRevenue,
	accounts.AccountTypeExpense,
}

// Integrity scans a business for unbalanced entries and for postings the
// per-leaf walk does not see, such as lines on head accounts.
func (e *Engine) Integrity(ctx context.Context, businessID int64, asOf time.Time) (IntegrityReport, error) {
	asOf = journals.DateOnly(asOf)
	snap, err := e.load(ctx, KindIntegrity, []int64{businessID}, nil, asOf)
	if err != nil {
		return IntegrityReport{}, err
	}
	raw, err := e.repo.RawTypeTotals(ctx, businessID, asOf)
	if err != nil {
		return IntegrityReport{}, err
	}
	unbalanced, err := e.repo.UnbalancedEntries(ctx, businessID)
	if err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{BusinessID: businessID, AsOf: asOf, Unbalanced: unbalanced}
	for _, t := range reconciledTypes {
		walked := buildSection(t, snap.ofType(t)).Total
		agg := raw[t]
		rawSigned := shared.SignedBalance(t.NaturalBalance(), agg.Debit, agg.Credit)
		report.Types = append(report.Types, TypeReconciliation{
			Type:       t,
			Walked:     walked,
			Raw:        rawSigned,
			Difference: walked.Sub(rawSigned),
		})
	}
	report.Consistent = len(unbalanced) == 0 && len(report.Mismatches()) == 0
	return report, nil
}
