package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository exposes chart-of-accounts persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	Categories(ctx context.Context) ([]Category, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	CodeExists(ctx context.Context, businessID int64, code string, excludeID int64) (bool, error)
	IsDescendant(ctx context.Context, ancestorID, candidateID int64) (bool, error)
	CountLines(ctx context.Context, accountID int64) (int, error)
	CountChildren(ctx context.Context, accountID int64) (int, error)
	Insert(ctx context.Context, acc Account) (Account, error)
	Update(ctx context.Context, acc Account) error
	Delete(ctx context.Context, id int64) error
}

const accountColumns = `a.id, a.business_id, a.code, a.name, a.parent_id, a.category_id, a.is_active,
EXISTS (SELECT 1 FROM accounts c WHERE c.parent_id = a.id), a.created_at, a.updated_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	var (
		where []string
		args  []any
	)
	if filter.BusinessID != 0 {
		args = append(args, filter.BusinessID)
		where = append(where, fmt.Sprintf("a.business_id = $%d", len(args)))
	}
	if filter.AccountType != "" {
		args = append(args, filter.AccountType)
		where = append(where, fmt.Sprintf("cat.account_type = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(a.code ILIKE $%d OR a.name ILIKE $%d)", len(args), len(args)))
	}
	switch filter.Kind {
	case KindHead:
		where = append(where, "(a.parent_id IS NULL OR EXISTS (SELECT 1 FROM accounts c WHERE c.parent_id = a.id))")
	case KindPost:
		where = append(where, "NOT EXISTS (SELECT 1 FROM accounts c WHERE c.parent_id = a.id)")
	}
	query := `SELECT ` + accountColumns + ` FROM accounts a LEFT JOIN account_categories cat ON cat.id = a.category_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.business_id, a.code"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NotFound("account", id)
	}
	return acc, err
}

func (r *repository) Categories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, account_type, normal_balance, is_cash_equivalent, cash_flow_activity
FROM account_categories ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NotFound("account", id)
	}
	return acc, err
}

func (r *txRepository) GetCategory(ctx context.Context, id int64) (Category, error) {
	cat, err := scanCategory(r.tx.QueryRow(ctx, `SELECT id, code, name, account_type, normal_balance, is_cash_equivalent, cash_flow_activity
FROM account_categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, shared.NotFound("account category", id)
	}
	return cat, err
}

func (r *txRepository) CodeExists(ctx context.Context, businessID int64, code string, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE business_id = $1 AND code = $2 AND id <> $3)`,
		businessID, code, excludeID).Scan(&exists)
	return exists, err
}

func (r *txRepository) IsDescendant(ctx context.Context, ancestorID, candidateID int64) (bool, error) {
	var found bool
	err := r.tx.QueryRow(ctx, `WITH RECURSIVE tree AS (
	SELECT id FROM accounts WHERE parent_id = $1
	UNION ALL
	SELECT a.id FROM accounts a JOIN tree t ON a.parent_id = t.id
)
SELECT EXISTS (SELECT 1 FROM tree WHERE id = $2)`, ancestorID, candidateID).Scan(&found)
	return found, err
}

func (r *txRepository) CountLines(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entry_details WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}

func (r *txRepository) CountChildren(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE parent_id = $1`, accountID).Scan(&n)
	return n, err
}

func (r *txRepository) Insert(ctx context.Context, acc Account) (Account, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (business_id, code, name, parent_id, category_id, is_active)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		acc.BusinessID, acc.Code, acc.Name, acc.ParentID, acc.CategoryID, acc.IsActive).
		Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_accounts_business_code") {
		return Account{}, &shared.DuplicateCodeError{BusinessID: acc.BusinessID, Code: acc.Code}
	}
	return acc, err
}

func (r *txRepository) Update(ctx context.Context, acc Account) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET code=$2, name=$3, parent_id=$4, category_id=$5, is_active=$6, updated_at=NOW()
WHERE id=$1`, acc.ID, acc.Code, acc.Name, acc.ParentID, acc.CategoryID, acc.IsActive)
	if db.IsUniqueViolation(err, "uq_accounts_business_code") {
		return &shared.DuplicateCodeError{BusinessID: acc.BusinessID, Code: acc.Code}
	}
	return err
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.BusinessID, &a.Code, &a.Name, &a.ParentID, &a.CategoryID, &a.IsActive, &a.HasChildren, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.AccountType, &c.NormalBalance, &c.IsCashEquivalent, &c.CashFlowActivity)
	return c, err
}
