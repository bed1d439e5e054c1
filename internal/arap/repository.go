package arap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository defines document data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// WithPaymentTx runs fn at ReadCommitted so a writer blocked on the
	// document row lock re-reads the committed paid amount.
	WithPaymentTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, kind Kind, id int64) (Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
	ListOpen(ctx context.Context, kind Kind, businessID int64) ([]Document, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	Ledger() journals.TxRepository
	NextNumber(ctx context.Context, kind Kind, businessID int64) (string, error)
	Insert(ctx context.Context, doc Document) (Document, error)
	GetForUpdate(ctx context.Context, kind Kind, id int64) (Document, error)
	UpdateState(ctx context.Context, doc Document) error
	InsertPayment(ctx context.Context, kind Kind, p Payment) (Payment, error)
	LinkPaymentEntry(ctx context.Context, kind Kind, paymentID, entryID int64) error
}

type tables struct {
	docs, items, payments string
}

func tablesFor(kind Kind) tables {
	if kind == KindBill {
		return tables{docs: "bills", items: "bill_items", payments: "bill_payments"}
	}
	return tables{docs: "invoices", items: "invoice_items", payments: "invoice_payments"}
}

const docColumns = `id, business_id, contact_id, number, issue_date, due_date, total_amount, paid_amount, status, journal_entry_id, created_at, updated_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed document repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) WithPaymentTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	return getDocument(ctx, r.pool, kind, id, "")
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	t := tablesFor(filter.Kind)
	var (
		where []string
		args  []any
	)
	if filter.BusinessID != 0 {
		args = append(args, filter.BusinessID)
		where = append(where, fmt.Sprintf("business_id = $%d", len(args)))
	}
	if filter.ContactID != 0 {
		args = append(args, filter.ContactID)
		where = append(where, fmt.Sprintf("contact_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+t.docs+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	docs, err := queryDocuments(ctx, r.pool, filter.Kind, `SELECT `+docColumns+` FROM `+t.docs+clause+
		fmt.Sprintf(" ORDER BY issue_date DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	return docs, total, err
}

func (r *repository) ListOpen(ctx context.Context, kind Kind, businessID int64) ([]Document, error) {
	t := tablesFor(kind)
	return queryDocuments(ctx, r.pool, kind, `SELECT `+docColumns+` FROM `+t.docs+`
WHERE business_id = $1 AND status IN ('SENT','SUBMITTED','PARTIALLY_PAID') ORDER BY due_date, id`, businessID)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Ledger() journals.TxRepository {
	return journals.NewTxRepository(r.tx)
}

// NextNumber advances the per-business counter row, which stays locked until
// the transaction ends. Numbers already taken by manually numbered documents
// are skipped.
func (r *txRepository) NextNumber(ctx context.Context, kind Kind, businessID int64) (string, error) {
	t := tablesFor(kind)
	for {
		var n int64
		err := r.tx.QueryRow(ctx, `INSERT INTO document_sequences (business_id, kind, last_value) VALUES ($1, $2, 1)
ON CONFLICT (business_id, kind) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, businessID, string(kind)).Scan(&n)
		if err != nil {
			return "", fmt.Errorf("next %s number: %w", kind.label(), err)
		}
		number := formatNumber(kind, n)
		var taken bool
		if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+t.docs+` WHERE business_id = $1 AND number = $2)`,
			businessID, number).Scan(&taken); err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
}

func (r *txRepository) Insert(ctx context.Context, doc Document) (Document, error) {
	t := tablesFor(doc.Kind)
	err := r.tx.QueryRow(ctx, `INSERT INTO `+t.docs+` (business_id, contact_id, number, issue_date, due_date, total_amount, paid_amount, status, journal_entry_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		doc.BusinessID, doc.ContactID, doc.Number, doc.IssueDate, doc.DueDate, doc.TotalAmount, doc.PaidAmount, string(doc.Status), doc.JournalEntryID).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Document{}, shared.Invalid("%s number %q already used", doc.Kind.label(), doc.Number)
		}
		return Document{}, err
	}
	batch := &pgx.Batch{}
	for _, item := range doc.Items {
		batch.Queue(`INSERT INTO `+t.items+` (document_id, account_id, description, amount) VALUES ($1,$2,$3,$4) RETURNING id`,
			doc.ID, item.AccountID, item.Description, item.Amount)
	}
	results := r.tx.SendBatch(ctx, batch)
	for i := range doc.Items {
		doc.Items[i].ID = 0
		if err := results.QueryRow().Scan(&doc.Items[i].ID); err != nil {
			_ = results.Close()
			return Document{}, fmt.Errorf("insert %s item %d: %w", doc.Kind.label(), i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, kind Kind, id int64) (Document, error) {
	return getDocument(ctx, r.tx, kind, id, " FOR UPDATE")
}

func (r *txRepository) UpdateState(ctx context.Context, doc Document) error {
	t := tablesFor(doc.Kind)
	cmd, err := r.tx.Exec(ctx, `UPDATE `+t.docs+` SET status=$2, paid_amount=$3, journal_entry_id=$4, issue_date=$5, updated_at=NOW() WHERE id=$1`,
		doc.ID, string(doc.Status), doc.PaidAmount, doc.JournalEntryID, doc.IssueDate)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound(doc.Kind.label(), doc.ID)
	}
	return nil
}

func (r *txRepository) InsertPayment(ctx context.Context, kind Kind, p Payment) (Payment, error) {
	t := tablesFor(kind)
	err := r.tx.QueryRow(ctx, `INSERT INTO `+t.payments+` (document_id, payment_date, amount, payment_account_id)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`, p.DocumentID, p.PaymentDate, p.Amount, p.PaymentAccountID).
		Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (r *txRepository) LinkPaymentEntry(ctx context.Context, kind Kind, paymentID, entryID int64) error {
	t := tablesFor(kind)
	_, err := r.tx.Exec(ctx, `UPDATE `+t.payments+` SET journal_entry_id = $2 WHERE id = $1`, paymentID, entryID)
	return err
}

func getDocument(ctx context.Context, q querier, kind Kind, id int64, lock string) (Document, error) {
	t := tablesFor(kind)
	doc, err := scanDocument(q.QueryRow(ctx, `SELECT `+docColumns+` FROM `+t.docs+` WHERE id = $1`+lock, id), kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, shared.NotFound(kind.label(), id)
	}
	if err != nil {
		return Document{}, err
	}
	if err := loadDetails(ctx, q, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func queryDocuments(ctx context.Context, q querier, kind Kind, sql string, args ...any) ([]Document, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows, kind)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, doc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := loadDetails(ctx, q, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanDocument(row pgx.Row, kind Kind) (Document, error) {
	doc := Document{Kind: kind}
	var status string
	err := row.Scan(&doc.ID, &doc.BusinessID, &doc.ContactID, &doc.Number, &doc.IssueDate, &doc.DueDate,
		&doc.TotalAmount, &doc.PaidAmount, &status, &doc.JournalEntryID, &doc.CreatedAt, &doc.UpdatedAt)
	doc.Status = Status(status)
	return doc, err
}

func loadDetails(ctx context.Context, q querier, doc *Document) error {
	t := tablesFor(doc.Kind)
	rows, err := q.Query(ctx, `SELECT id, account_id, description, amount FROM `+t.items+` WHERE document_id = $1 ORDER BY id`, doc.ID)
	if err != nil {
		return err
	}
	doc.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var item Item
		err := row.Scan(&item.ID, &item.AccountID, &item.Description, &item.Amount)
		return item, err
	})
	if err != nil {
		return err
	}
	rows, err = q.Query(ctx, `SELECT id, document_id, payment_date, amount, payment_account_id, journal_entry_id, created_at
FROM `+t.payments+` WHERE document_id = $1 ORDER BY payment_date, id`, doc.ID)
	if err != nil {
		return err
	}
	doc.Payments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.DocumentID, &p.PaymentDate, &p.Amount, &p.PaymentAccountID, &p.JournalEntryID, &p.CreatedAt)
		return p, err
	})
	return err
}

func formatNumber(kind Kind, n int64) string {
	prefix := "INV"
	if kind == KindBill {
		prefix = "BILL"
	}
	return fmt.Sprintf("%s-%05d", prefix, n)
}
