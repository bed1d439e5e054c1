package assets

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository defines fixed asset data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// WithRunTx runs fn at ReadCommitted so a run blocked on a schedule row
	// lock sees the row as POSTED once the competing run commits.
	WithRunTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Asset, error)
	List(ctx context.Context, businessID int64) ([]Asset, error)
	// DueSchedules lists PENDING rows dated on or before asOf, oldest first.
	DueSchedules(ctx context.Context, businessID int64, asOf time.Time) ([]ScheduleRow, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	Ledger() journals.TxRepository
	InsertAsset(ctx context.Context, a Asset) (Asset, error)
	GetForUpdate(ctx context.Context, id int64) (Asset, error)
	SaveSetting(ctx context.Context, s Setting) (Setting, error)
	DeletePendingSchedule(ctx context.Context, assetID int64) error
	InsertSchedule(ctx context.Context, rows []ScheduleRow) ([]ScheduleRow, error)
	DeleteAsset(ctx context.Context, id int64) error
	ScheduleForUpdate(ctx context.Context, scheduleID int64) (ScheduleRow, error)
	MarkPosted(ctx context.Context, scheduleID int64, entryID *int64, at time.Time) error
}

const (
	assetColumns    = `id, business_id, code, name, acquisition_date, acquisition_cost, asset_account_id, created_at, updated_at`
	scheduleColumns = `id, asset_id, period_no, schedule_date, depreciation_amount, accumulated_amount, book_value, status, journal_entry_id, posted_at`
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed asset repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) WithRunTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, id int64) (Asset, error) {
	return getAsset(ctx, r.pool, id, "")
}

func (r *repository) List(ctx context.Context, businessID int64) ([]Asset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE business_id = $1 ORDER BY code`, businessID)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Asset, error) {
		return scanAsset(row)
	})
	if err != nil {
		return nil, err
	}
	for i := range list {
		if err := loadDepreciation(ctx, r.pool, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *repository) DueSchedules(ctx context.Context, businessID int64, asOf time.Time) ([]ScheduleRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.asset_id, s.period_no, s.schedule_date, s.depreciation_amount, s.accumulated_amount,
	s.book_value, s.status, s.journal_entry_id, s.posted_at
FROM depreciation_schedules s
JOIN fixed_assets a ON a.id = s.asset_id
WHERE a.business_id = $1 AND s.status = 'PENDING' AND s.schedule_date <= $2
ORDER BY s.schedule_date, s.asset_id, s.period_no`, businessID, asOf)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ScheduleRow, error) {
		return scanSchedule(row)
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Ledger() journals.TxRepository {
	return journals.NewTxRepository(r.tx)
}

func (r *txRepository) InsertAsset(ctx context.Context, a Asset) (Asset, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO fixed_assets (business_id, code, name, acquisition_date, acquisition_cost, asset_account_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		a.BusinessID, a.Code, a.Name, a.AcquisitionDate, a.AcquisitionCost, a.AssetAccountID).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_fixed_assets_code") {
		return Asset{}, shared.Invalid("asset code %q already used", a.Code)
	}
	return a, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Asset, error) {
	return getAsset(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txRepository) SaveSetting(ctx context.Context, s Setting) (Setting, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO depreciation_settings (asset_id, start_date, useful_life_months, salvage_value, expense_account_id, accumulated_account_id)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (asset_id) DO UPDATE SET start_date = EXCLUDED.start_date, useful_life_months = EXCLUDED.useful_life_months,
	salvage_value = EXCLUDED.salvage_value, expense_account_id = EXCLUDED.expense_account_id,
	accumulated_account_id = EXCLUDED.accumulated_account_id, updated_at = NOW()
RETURNING updated_at`, s.AssetID, s.StartDate, s.UsefulLifeMonths, s.SalvageValue, s.ExpenseAccountID, s.AccumulatedAccountID).
		Scan(&s.UpdatedAt)
	return s, err
}

func (r *txRepository) DeletePendingSchedule(ctx context.Context, assetID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM depreciation_schedules WHERE asset_id = $1 AND status = 'PENDING'`, assetID)
	return err
}

func (r *txRepository) InsertSchedule(ctx context.Context, rows []ScheduleRow) ([]ScheduleRow, error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO depreciation_schedules (asset_id, period_no, schedule_date, depreciation_amount, accumulated_amount, book_value, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, row.AssetID, row.PeriodNo, row.Date, row.Amount, row.Accumulated, row.BookValue, string(row.Status))
	}
	results := r.tx.SendBatch(ctx, batch)
	out := append([]ScheduleRow(nil), rows...)
	for i := range out {
		if err := results.QueryRow().Scan(&out[i].ID); err != nil {
			_ = results.Close()
			return nil, err
		}
	}
	return out, results.Close()
}

func (r *txRepository) DeleteAsset(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM fixed_assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound("fixed asset", id)
	}
	return nil
}

func (r *txRepository) ScheduleForUpdate(ctx context.Context, scheduleID int64) (ScheduleRow, error) {
	row, err := scanSchedule(r.tx.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM depreciation_schedules WHERE id = $1 FOR UPDATE`, scheduleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ScheduleRow{}, shared.NotFound("depreciation schedule", scheduleID)
	}
	return row, err
}

func (r *txRepository) MarkPosted(ctx context.Context, scheduleID int64, entryID *int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE depreciation_schedules SET status = 'POSTED', journal_entry_id = $2, posted_at = $3 WHERE id = $1`,
		scheduleID, entryID, at)
	return err
}

func getAsset(ctx context.Context, q querier, id int64, lock string) (Asset, error) {
	a, err := scanAsset(q.QueryRow(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, shared.NotFound("fixed asset", id)
	}
	if err != nil {
		return Asset{}, err
	}
	return a, loadDepreciation(ctx, q, &a)
}

func loadDepreciation(ctx context.Context, q querier, a *Asset) error {
	var s Setting
	err := q.QueryRow(ctx, `SELECT asset_id, start_date, useful_life_months, salvage_value, expense_account_id, accumulated_account_id, updated_at
FROM depreciation_settings WHERE asset_id = $1`, a.ID).
		Scan(&s.AssetID, &s.StartDate, &s.UsefulLifeMonths, &s.SalvageValue, &s.ExpenseAccountID, &s.AccumulatedAccountID, &s.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		a.Setting = nil
	case err != nil:
		return err
	default:
		a.Setting = &s
	}
	rows, err := q.Query(ctx, `SELECT `+scheduleColumns+` FROM depreciation_schedules WHERE asset_id = $1 ORDER BY period_no`, a.ID)
	if err != nil {
		return err
	}
	a.Schedule, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ScheduleRow, error) {
		return scanSchedule(row)
	})
	return err
}

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.BusinessID, &a.Code, &a.Name, &a.AcquisitionDate, &a.AcquisitionCost, &a.AssetAccountID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanSchedule(row pgx.Row) (ScheduleRow, error) {
	var (
		s      ScheduleRow
		status string
	)
	err := row.Scan(&s.ID, &s.AssetID, &s.PeriodNo, &s.Date, &s.Amount, &s.Accumulated, &s.BookValue, &status, &s.JournalEntryID, &s.PostedAt)
	s.Status = ScheduleStatus(status)
	return s, err
}
