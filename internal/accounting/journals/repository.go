package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error)
}

// TxRepository exposes ledger writes available within a transaction.
// Other modules reach it through their own transactions via NewTxRepository.
type TxRepository interface {
	PostingAccounts(ctx context.Context, ids []int64) (map[int64]AccountRef, error)
	InsertEntry(ctx context.Context, in EntryInput) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	DeleteLines(ctx context.Context, entryID int64) error
	GetForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	UpdateHeader(ctx context.Context, entry JournalEntry) error
	DeleteEntry(ctx context.Context, id int64) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
}

const entryColumns = `id, business_id, entry_date, description, reference_number, created_by, NULLIF(source_module, ''), source_id, created_at, updated_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed journal repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, shared.NotFound("journal entry", id)
	}
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.pool, []int64{id})
	return entry, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.BusinessID != 0 {
		args = append(args, filter.BusinessID)
		where = append(where, fmt.Sprintf("business_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, DateOnly(*filter.From))
		where = append(where, fmt.Sprintf("entry_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, DateOnly(*filter.To))
		where = append(where, fmt.Sprintf("entry_date <= $%d", len(args)))
	}
	if filter.AccountID != 0 {
		args = append(args, filter.AccountID)
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM journal_entry_details d WHERE d.journal_entry_id = journal_entries.id AND d.account_id = $%d)", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(description ILIKE $%d OR reference_number ILIKE $%d)", len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := internalShared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM journal_entries%s ORDER BY entry_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var (
		entries []JournalEntry
		ids     []int64
	)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
		ids = append(ids, entry.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return entries, total, nil
	}
	lines, err := loadLines(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	byEntry := make(map[int64][]JournalLine, len(ids))
	for _, line := range lines {
		byEntry[line.JournalEntryID] = append(byEntry[line.JournalEntryID], line)
	}
	for i := range entries {
		entries[i].Lines = byEntry[entries[i].ID]
	}
	return entries, total, nil
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds ledger writes to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) PostingAccounts(ctx context.Context, ids []int64) (map[int64]AccountRef, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.business_id, a.is_active,
EXISTS (SELECT 1 FROM accounts c WHERE c.parent_id = a.id)
FROM accounts a WHERE a.id = ANY($1) FOR SHARE OF a`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]AccountRef, len(ids))
	for rows.Next() {
		var ref AccountRef
		if err := rows.Scan(&ref.ID, &ref.BusinessID, &ref.IsActive, &ref.HasChildren); err != nil {
			return nil, err
		}
		out[ref.ID] = ref
	}
	return out, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, in EntryInput) (JournalEntry, error) {
	entry := JournalEntry{
		BusinessID:   in.BusinessID,
		EntryDate:    in.Date,
		Description:  in.Description,
		SourceModule: in.SourceModule,
	}
	if in.Reference != "" {
		ref := in.Reference
		entry.ReferenceNumber = &ref
	}
	if in.CreatedBy != 0 {
		by := in.CreatedBy
		entry.CreatedBy = &by
	}
	if in.SourceID != uuid.Nil {
		src := in.SourceID
		entry.SourceID = &src
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (business_id, entry_date, description, reference_number, created_by, source_module, source_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at, updated_at`,
		entry.BusinessID, entry.EntryDate, entry.Description, entry.ReferenceNumber, entry.CreatedBy, entry.SourceModule, entry.SourceID).
		Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	batch := &pgx.Batch{}
	for idx, line := range lines {
		batch.Queue(`INSERT INTO journal_entry_details (journal_entry_id, line_no, account_id, entry_type, amount)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, entryID, idx+1, line.AccountID, line.EntryType, line.Amount)
	}
	results := r.tx.SendBatch(ctx, batch)
	out := make([]JournalLine, len(lines))
	for idx, line := range lines {
		out[idx] = JournalLine{JournalEntryID: entryID, LineNo: idx + 1, AccountID: line.AccountID, EntryType: line.EntryType, Amount: line.Amount}
		if err := results.QueryRow().Scan(&out[idx].ID); err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("insert journal line %d: %w", idx+1, err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *txRepository) DeleteLines(ctx context.Context, entryID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_entry_details WHERE journal_entry_id = $1`, entryID)
	return err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, shared.NotFound("journal entry", id)
	}
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.tx, []int64{id})
	return entry, err
}

func (r *txRepository) UpdateHeader(ctx context.Context, entry JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET entry_date=$2, description=$3, reference_number=$4, updated_at=NOW() WHERE id=$1`,
		entry.ID, entry.EntryDate, entry.Description, entry.ReferenceNumber)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound("journal entry", entry.ID)
	}
	return nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `UPDATE depreciation_schedules SET status='PENDING', journal_entry_id=NULL, posted_at=NULL
WHERE journal_entry_id = $1`, id); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound("journal entry", id)
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, journal_entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if db.IsUniqueViolation(err, "uq_source_links") {
		return shared.ErrSourceAlreadyLinked
	}
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, entryIDs []int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_entry_id, line_no, account_id, entry_type, amount
FROM journal_entry_details WHERE journal_entry_id = ANY($1) ORDER BY journal_entry_id, line_no`, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalEntryID, &line.LineNo, &line.AccountID, &line.EntryType, &line.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e      JournalEntry
		module *string
	)
	err := row.Scan(&e.ID, &e.BusinessID, &e.EntryDate, &e.Description, &e.ReferenceNumber, &e.CreatedBy, &module, &e.SourceID, &e.CreatedAt, &e.UpdatedAt)
	if module != nil {
		e.SourceModule = *module
	}
	return e, err
}
