package savings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository defines savings data access.
type Repository interface {
	// WithTx runs fn at ReadCommitted so a submission blocked on the member
	// lock sees the withdrawals committed while it waited.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Member(ctx context.Context, id int64) (Member, error)
	CreateMember(ctx context.Context, m Member) (Member, error)
	Types(ctx context.Context, businessID int64) ([]Type, error)
	CreateType(ctx context.Context, t Type) (Type, error)
	Balances(ctx context.Context, memberID int64) ([]Balance, error)
	Transactions(ctx context.Context, memberID int64) ([]Transaction, error)
}

// TxRepository defines operations within a posting transaction.
type TxRepository interface {
	Ledger() journals.TxRepository
	// LockMember serializes submissions of one member.
	LockMember(ctx context.Context, memberID int64) error
	BalanceOf(ctx context.Context, memberID, typeID int64) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed savings repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Member(ctx context.Context, id int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `SELECT id, business_id, number, name, created_at FROM cooperation_members WHERE id = $1`, id).
		Scan(&m.ID, &m.BusinessID, &m.Number, &m.Name, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, shared.NotFound("member", id)
	}
	return m, err
}

func (r *repository) CreateMember(ctx context.Context, m Member) (Member, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO cooperation_members (business_id, number, name) VALUES ($1,$2,$3) RETURNING id, created_at`,
		m.BusinessID, m.Number, m.Name).Scan(&m.ID, &m.CreatedAt)
	if db.IsUniqueViolation(err, "uq_cooperation_members_number") {
		return Member{}, shared.Invalid("member number %q already used", m.Number)
	}
	return m, err
}

func (r *repository) Types(ctx context.Context, businessID int64) ([]Type, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, business_id, code, name, savings_account_id, settlement_account_id
FROM savings_types WHERE business_id = $1 ORDER BY code`, businessID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Type, error) {
		var t Type
		err := row.Scan(&t.ID, &t.BusinessID, &t.Code, &t.Name, &t.SavingsAccountID, &t.SettlementAccountID)
		return t, err
	})
}

func (r *repository) CreateType(ctx context.Context, t Type) (Type, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO savings_types (business_id, code, name, savings_account_id, settlement_account_id)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, t.BusinessID, t.Code, t.Name, t.SavingsAccountID, t.SettlementAccountID).Scan(&t.ID)
	if db.IsUniqueViolation(err, "uq_savings_types_code") {
		return Type{}, shared.Invalid("savings type %q already exists", t.Code)
	}
	return t, err
}

func (r *repository) Balances(ctx context.Context, memberID int64) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.code, t.name,
	COALESCE(SUM(s.amount) FILTER (WHERE s.transaction_type = 'DEPOSIT'), 0),
	COALESCE(SUM(s.amount) FILTER (WHERE s.transaction_type = 'WITHDRAWAL'), 0)
FROM cooperation_member_savings_transactions s
JOIN savings_types t ON t.id = s.savings_type_id
WHERE s.member_id = $1
GROUP BY t.id, t.code, t.name
ORDER BY t.code`, memberID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Balance, error) {
		var b Balance
		if err := row.Scan(&b.SavingsTypeID, &b.Code, &b.Name, &b.Deposits, &b.Withdrawals); err != nil {
			return Balance{}, err
		}
		b.Balance = b.Deposits.Sub(b.Withdrawals)
		return b, nil
	})
}

func (r *repository) Transactions(ctx context.Context, memberID int64) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, member_id, savings_type_id, transaction_type, amount, transaction_date, note, journal_entry_id, created_at
FROM cooperation_member_savings_transactions WHERE member_id = $1 ORDER BY transaction_date, id`, memberID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transaction, error) {
		var (
			t    Transaction
			kind string
		)
		err := row.Scan(&t.ID, &t.MemberID, &t.SavingsTypeID, &kind, &t.Amount, &t.Date, &t.Note, &t.JournalEntryID, &t.CreatedAt)
		t.Kind = posting.SavingsKind(kind)
		return t, err
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Ledger() journals.TxRepository {
	return journals.NewTxRepository(r.tx)
}

func (r *txRepository) LockMember(ctx context.Context, memberID int64) error {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM cooperation_members WHERE id = $1 FOR UPDATE`, memberID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound("member", memberID)
	}
	return err
}

func (r *txRepository) BalanceOf(ctx context.Context, memberID, typeID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN transaction_type = 'DEPOSIT' THEN amount ELSE -amount END), 0)
FROM cooperation_member_savings_transactions WHERE member_id = $1 AND savings_type_id = $2`, memberID, typeID).Scan(&balance)
	return balance, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO cooperation_member_savings_transactions
	(member_id, savings_type_id, transaction_type, amount, transaction_date, note, journal_entry_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		t.MemberID, t.SavingsTypeID, string(t.Kind), t.Amount, t.Date, strings.TrimSpace(t.Note), t.JournalEntryID).
		Scan(&t.ID, &t.CreatedAt)
	return t, err
}
