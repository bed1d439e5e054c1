package reports

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository is the read side the engine aggregates from. Dates are inclusive
// calendar dates; a nil from means "since the first posting".
type Repository interface {
	Businesses(ctx context.Context) ([]Business, error)
	// Accounts returns the chart of the given businesses, or of all when empty.
	Accounts(ctx context.Context, businessIDs []int64) ([]AccountInfo, error)
	Account(ctx context.Context, id int64) (AccountInfo, error)
	Totals(ctx context.Context, accountIDs []int64, from *time.Time, to time.Time) (map[int64]Totals, error)
	Lines(ctx context.Context, accountIDs []int64, from, to time.Time) ([]PostingLine, error)
	// CashCounterTotals sums, per account, the non-cash lines of entries that
	// touch any of the cash accounts.
	CashCounterTotals(ctx context.Context, cashAccountIDs []int64, from, to time.Time) (map[int64]Totals, error)
	// RawTypeTotals groups every posting of the business by account type in one
	// aggregate, without walking the tree.
	RawTypeTotals(ctx context.Context, businessID int64, to time.Time) (map[accounts.AccountType]Totals, error)
	UnbalancedEntries(ctx context.Context, businessID int64) ([]UnbalancedEntry, error)
}

const accountInfoColumns = `a.id, a.business_id, a.code, a.name, a.parent_id,
EXISTS (SELECT 1 FROM accounts ch WHERE ch.parent_id = a.id), a.is_active,
c.id, c.code, c.name, c.account_type, c.normal_balance, c.is_cash_equivalent, c.cash_flow_activity`

const sumColumns = `COALESCE(SUM(d.amount) FILTER (WHERE d.entry_type = 'DEBIT'), 0),
COALESCE(SUM(d.amount) FILTER (WHERE d.entry_type = 'CREDIT'), 0)`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed report repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Businesses(ctx context.Context) ([]Business, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name FROM businesses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Code, &b.Name); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) Accounts(ctx context.Context, businessIDs []int64) ([]AccountInfo, error) {
	sql := `SELECT ` + accountInfoColumns + ` FROM accounts a LEFT JOIN account_categories c ON c.id = a.category_id`
	var args []any
	if len(businessIDs) > 0 {
		sql += ` WHERE a.business_id = ANY($1)`
		args = append(args, businessIDs)
	}
	rows, err := r.pool.Query(ctx, sql+` ORDER BY a.code, a.business_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountInfo
	for rows.Next() {
		acc, err := scanAccountInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (r *repository) Account(ctx context.Context, id int64) (AccountInfo, error) {
	acc, err := scanAccountInfo(r.pool.QueryRow(ctx, `SELECT `+accountInfoColumns+`
FROM accounts a LEFT JOIN account_categories c ON c.id = a.category_id WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountInfo{}, shared.NotFound("account", id)
	}
	return acc, err
}

func (r *repository) Totals(ctx context.Context, accountIDs []int64, from *time.Time, to time.Time) (map[int64]Totals, error) {
	out := make(map[int64]Totals, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}
	sql := `SELECT d.account_id, ` + sumColumns + `
FROM journal_entry_details d JOIN journal_entries e ON e.id = d.journal_entry_id
WHERE d.account_id = ANY($1) AND e.entry_date <= $2`
	args := []any{accountIDs, to}
	if from != nil {
		sql += ` AND e.entry_date >= $3`
		args = append(args, *from)
	}
	rows, err := r.pool.Query(ctx, sql+` GROUP BY d.account_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id int64
			t  Totals
		)
		if err := rows.Scan(&id, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, rows.Err()
}

func (r *repository) Lines(ctx context.Context, accountIDs []int64, from, to time.Time) ([]PostingLine, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT e.id, d.id, e.business_id, d.account_id, e.entry_date, e.description,
COALESCE(e.reference_number, ''), d.entry_type, d.amount
FROM journal_entry_details d JOIN journal_entries e ON e.id = d.journal_entry_id
WHERE d.account_id = ANY($1) AND e.entry_date BETWEEN $2 AND $3
ORDER BY e.entry_date, e.id, d.line_no`, accountIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostingLine
	for rows.Next() {
		var l PostingLine
		if err := rows.Scan(&l.EntryID, &l.LineID, &l.BusinessID, &l.AccountID, &l.Date, &l.Description,
			&l.Reference, &l.EntryType, &l.Amount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) CashCounterTotals(ctx context.Context, cashAccountIDs []int64, from, to time.Time) (map[int64]Totals, error) {
	out := make(map[int64]Totals)
	if len(cashAccountIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT d.account_id, `+sumColumns+`
FROM journal_entry_details d JOIN journal_entries e ON e.id = d.journal_entry_id
WHERE e.entry_date BETWEEN $2 AND $3
  AND NOT (d.account_id = ANY($1))
  AND EXISTS (SELECT 1 FROM journal_entry_details cd WHERE cd.journal_entry_id = e.id AND cd.account_id = ANY($1))
GROUP BY d.account_id`, cashAccountIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id int64
			t  Totals
		)
		if err := rows.Scan(&id, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, rows.Err()
}

func (r *repository) RawTypeTotals(ctx context.Context, businessID int64, to time.Time) (map[accounts.AccountType]Totals, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.account_type, `+sumColumns+`
FROM journal_entry_details d
JOIN journal_entries e ON e.id = d.journal_entry_id
JOIN accounts a ON a.id = d.account_id
JOIN account_categories c ON c.id = a.category_id
WHERE e.business_id = $1 AND e.entry_date <= $2
GROUP BY c.account_type`, businessID, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[accounts.AccountType]Totals)
	for rows.Next() {
		var (
			typ accounts.AccountType
			t   Totals
		)
		if err := rows.Scan(&typ, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out[typ] = t
	}
	return out, rows.Err()
}

func (r *repository) UnbalancedEntries(ctx context.Context, businessID int64) ([]UnbalancedEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.business_id, `+sumColumns+`
FROM journal_entries e LEFT JOIN journal_entry_details d ON d.journal_entry_id = e.id
WHERE e.business_id = $1
GROUP BY e.id, e.business_id
HAVING COUNT(d.id) < 2
    OR ABS(COALESCE(SUM(d.amount) FILTER (WHERE d.entry_type = 'DEBIT'), 0)
         - COALESCE(SUM(d.amount) FILTER (WHERE d.entry_type = 'CREDIT'), 0)) > 0.01
ORDER BY e.id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UnbalancedEntry
	for rows.Next() {
		var u UnbalancedEntry
		if err := rows.Scan(&u.EntryID, &u.BusinessID, &u.Debit, &u.Credit); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanAccountInfo(row pgx.Row) (AccountInfo, error) {
	var (
		acc      AccountInfo
		catID    *int64
		catCode  *string
		catName  *string
		catType  *string
		normal   *string
		cashEq   *bool
		activity *string
	)
	if err := row.Scan(&acc.ID, &acc.BusinessID, &acc.Code, &acc.Name, &acc.ParentID, &acc.HasChildren, &acc.IsActive,
		&catID, &catCode, &catName, &catType, &normal, &cashEq, &activity); err != nil {
		return AccountInfo{}, err
	}
	if catID != nil {
		cat := &accounts.Category{
			ID:               *catID,
			Code:             *catCode,
			Name:             *catName,
			AccountType:      accounts.AccountType(*catType),
			NormalBalance:    shared.EntryType(*normal),
			IsCashEquivalent: cashEq != nil && *cashEq,
		}
		if activity != nil {
			a := accounts.CashFlowActivity(*activity)
			cat.CashFlowActivity = &a
		}
		acc.Category = cat
	}
	return acc, nil
}
