package arap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service is the receivable/payable tracker.
type Service struct {
	repo     Repository
	observer journals.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the tracker.
func NewService(repo Repository, observer journals.Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, observer: observer, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) today() time.Time {
	return journals.DateOnly(s.now())
}

// PostDocument creates an invoice or bill. Unless saved as draft it is issued
// at once: the accrual is posted and an optional initial payment applied.
func (s *Service) PostDocument(ctx context.Context, settings mappings.BusinessFinanceSettings, in DocumentInput) (Document, error) {
	if !in.Kind.Valid() {
		return Document{}, shared.Invalid("unknown document kind %q", in.Kind)
	}
	if in.BusinessID <= 0 || in.ContactID <= 0 {
		return Document{}, shared.Invalid("business and contact are required")
	}
	items, total, err := normalizeItems(in.Items)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		Kind:        in.Kind,
		BusinessID:  in.BusinessID,
		ContactID:   in.ContactID,
		Number:      strings.TrimSpace(in.Number),
		IssueDate:   journals.DateOnly(in.IssueDate),
		DueDate:     journals.DateOnly(in.DueDate),
		TotalAmount: total,
		PaidAmount:  decimal.Zero,
		Status:      StatusDraft,
		Items:       items,
	}
	if doc.IssueDate.IsZero() {
		doc.IssueDate = s.today()
	}
	if doc.DueDate.IsZero() {
		doc.DueDate = doc.IssueDate
	}
	if doc.DueDate.Before(doc.IssueDate) {
		return Document{}, shared.Invalid("due date precedes issue date")
	}

	var (
		control, cash int64
		initial       *PaymentInput
	)
	if in.Draft {
		if in.InitialPayment != nil {
			return Document{}, shared.Invalid("a draft %s cannot carry a payment", in.Kind.label())
		}
	} else {
		if settings.BusinessID != in.BusinessID {
			return Document{}, shared.Invalid("settings belong to business %d, %s to %d", settings.BusinessID, in.Kind.label(), in.BusinessID)
		}
		if control, err = controlAccount(settings, in.Kind); err != nil {
			return Document{}, err
		}
		if in.InitialPayment != nil {
			p := *in.InitialPayment
			if p.Date.IsZero() {
				p.Date = doc.IssueDate
			}
			if cash, err = settings.CashOr(p.PaymentAccountID); err != nil {
				return Document{}, err
			}
			initial = &p
		}
	}

	entries := 0
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if doc.Number == "" {
			num, err := tx.NextNumber(ctx, doc.Kind, doc.BusinessID)
			if err != nil {
				return err
			}
			doc.Number = num
		}
		var err error
		if doc, err = tx.Insert(ctx, doc); err != nil {
			return err
		}
		if in.Draft {
			return nil
		}
		n, err := s.issue(ctx, tx, &doc, control)
		if err != nil {
			return err
		}
		entries += n
		if initial != nil {
			if _, err := s.pay(ctx, tx, &doc, control, cash, *initial); err != nil {
				return err
			}
			entries++
		}
		return tx.UpdateState(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	s.notify(ctx, doc.Kind, entries)
	s.logger.Info("document posted", slog.String("kind", string(doc.Kind)), slog.Int64("document_id", doc.ID),
		slog.String("status", string(doc.Status)))
	return doc, nil
}

// Issue posts the accrual of a draft document.
func (s *Service) Issue(ctx context.Context, settings mappings.BusinessFinanceSettings, kind Kind, id int64, date *time.Time) (Document, error) {
	control, err := controlAccount(settings, kind)
	if err != nil {
		return Document{}, err
	}
	var (
		doc     Document
		entries int
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if doc, err = tx.GetForUpdate(ctx, kind, id); err != nil {
			return err
		}
		if doc.Status != StatusDraft {
			return fmt.Errorf("%w: %s %d is %s", shared.ErrInvalidStatus, kind.label(), id, doc.Status)
		}
		if doc.BusinessID != settings.BusinessID {
			return shared.Invalid("settings belong to business %d, %s to %d", settings.BusinessID, kind.label(), doc.BusinessID)
		}
		if date != nil && !date.IsZero() {
			doc.IssueDate = journals.DateOnly(*date)
		}
		if entries, err = s.issue(ctx, tx, &doc, control); err != nil {
			return err
		}
		return tx.UpdateState(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	s.notify(ctx, kind, entries)
	return doc, nil
}

// issue posts the accrual when the total is positive and sets the issued status.
func (s *Service) issue(ctx context.Context, tx TxRepository, doc *Document, control int64) (int, error) {
	doc.Status = settledStatus(doc.Kind, doc.PaidAmount, doc.TotalAmount)
	if !doc.TotalAmount.IsPositive() {
		return 0, nil
	}
	entry, err := posting.Apply(ctx, tx.Ledger(), accrualRule(*doc, control))
	if err != nil {
		return 0, err
	}
	doc.JournalEntryID = &entry.ID
	return 1, nil
}

// ApplyPayment records a payment under a row lock on the document.
func (s *Service) ApplyPayment(ctx context.Context, settings mappings.BusinessFinanceSettings, kind Kind, id int64, in PaymentInput) (Document, Payment, error) {
	control, err := controlAccount(settings, kind)
	if err != nil {
		return Document{}, Payment{}, err
	}
	cash, err := settings.CashOr(in.PaymentAccountID)
	if err != nil {
		return Document{}, Payment{}, err
	}
	if in.Date.IsZero() {
		in.Date = s.today()
	}
	var (
		doc     Document
		payment Payment
	)
	err = s.repo.WithPaymentTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if doc, err = tx.GetForUpdate(ctx, kind, id); err != nil {
			return err
		}
		if doc.BusinessID != settings.BusinessID {
			return shared.Invalid("settings belong to business %d, %s to %d", settings.BusinessID, kind.label(), doc.BusinessID)
		}
		if payment, err = s.pay(ctx, tx, &doc, control, cash, in); err != nil {
			return err
		}
		return tx.UpdateState(ctx, doc)
	})
	if err != nil {
		return Document{}, Payment{}, err
	}
	s.notify(ctx, kind, 1)
	s.logger.Info("payment applied", slog.String("kind", string(kind)), slog.Int64("document_id", id),
		slog.String("amount", payment.Amount.StringFixed(2)), slog.String("status", string(doc.Status)))
	return doc, payment, nil
}

// pay validates, records and posts one payment against a locked document.
func (s *Service) pay(ctx context.Context, tx TxRepository, doc *Document, control, cash int64, in PaymentInput) (Payment, error) {
	amount := shared.Round2(in.Amount)
	if err := checkPayment(*doc, amount); err != nil {
		return Payment{}, err
	}
	payment, err := tx.InsertPayment(ctx, doc.Kind, Payment{
		DocumentID:       doc.ID,
		PaymentDate:      journals.DateOnly(in.Date),
		Amount:           amount,
		PaymentAccountID: cash,
	})
	if err != nil {
		return Payment{}, err
	}
	entry, err := posting.Apply(ctx, tx.Ledger(), posting.Payment{
		Side:             doc.Kind.side(),
		BusinessID:       doc.BusinessID,
		DocumentID:       doc.ID,
		PaymentID:        payment.ID,
		Number:           doc.Number,
		Date:             payment.PaymentDate,
		ControlAccountID: control,
		CashAccountID:    cash,
		Amount:           amount,
	})
	if err != nil {
		return Payment{}, err
	}
	if err := tx.LinkPaymentEntry(ctx, doc.Kind, payment.ID, entry.ID); err != nil {
		return Payment{}, err
	}
	payment.JournalEntryID = &entry.ID
	doc.PaidAmount = doc.PaidAmount.Add(amount)
	doc.Status = settledStatus(doc.Kind, doc.PaidAmount, doc.TotalAmount)
	doc.Payments = append(doc.Payments, payment)
	return payment, nil
}

// ValidatePayment runs the payment checks without writing.
func (s *Service) ValidatePayment(ctx context.Context, kind Kind, id int64, amount decimal.Decimal) (PaymentCheck, error) {
	doc, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return PaymentCheck{}, err
	}
	check := PaymentCheck{OK: true, Outstanding: doc.Outstanding()}
	if err := checkPayment(doc, shared.Round2(amount)); err != nil {
		check.OK = false
		check.Reason = err.Error()
	}
	return check, nil
}

// Void cancels an unpaid document and removes its accrual entry.
func (s *Service) Void(ctx context.Context, kind Kind, id int64) (Document, error) {
	var (
		doc     Document
		entries int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if doc, err = tx.GetForUpdate(ctx, kind, id); err != nil {
			return err
		}
		if doc.Status == StatusVoid || doc.Status == StatusPaid || len(doc.Payments) > 0 {
			return fmt.Errorf("%w: %s %d is %s with %d payments", shared.ErrInvalidStatus, kind.label(), id, doc.Status, len(doc.Payments))
		}
		if doc.JournalEntryID != nil {
			if err := tx.Ledger().DeleteEntry(ctx, *doc.JournalEntryID); err != nil {
				return err
			}
			doc.JournalEntryID = nil
			entries = 1
		}
		doc.Status = StatusVoid
		return tx.UpdateState(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	s.notify(ctx, kind, entries)
	return doc, nil
}

// Get returns one document with its items and payments.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	return s.repo.Get(ctx, kind, id)
}

// List returns a page of documents.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, internalShared.Pagination, error) {
	if !filter.Kind.Valid() {
		return nil, internalShared.Pagination{}, shared.Invalid("unknown document kind %q", filter.Kind)
	}
	filter.Page, filter.PerPage = internalShared.NormalizePage(filter.Page, filter.PerPage)
	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return docs, internalShared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Aging buckets the outstanding balance of open documents by days past due.
func (s *Service) Aging(ctx context.Context, kind Kind, businessID int64, asOf time.Time) (AgingBucket, error) {
	if asOf.IsZero() {
		asOf = s.today()
	}
	asOf = journals.DateOnly(asOf)
	docs, err := s.repo.ListOpen(ctx, kind, businessID)
	if err != nil {
		return AgingBucket{}, err
	}
	bucket := AgingBucket{}
	for _, doc := range docs {
		outstanding := doc.Outstanding()
		if !outstanding.IsPositive() || doc.IssueDate.After(asOf) {
			continue
		}
		daysOverdue := int(asOf.Sub(doc.DueDate).Hours() / 24)
		bucket.add(daysOverdue, outstanding)
	}
	return bucket, nil
}

func (s *Service) notify(ctx context.Context, kind Kind, entries int) {
	module := posting.ModuleInvoice
	if kind == KindBill {
		module = posting.ModuleBill
	}
	journals.Notify(ctx, s.observer, module, entries)
}

// checkPayment applies the status and overpayment guards.
func checkPayment(doc Document, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.Invalid("payment amount must be positive")
	}
	switch {
	case doc.Status == StatusPaid:
		return &shared.DocumentAlreadySettledError{Kind: doc.Kind.label(), DocumentID: doc.ID}
	case !doc.Status.Open():
		return fmt.Errorf("%w: %s %d is %s", shared.ErrInvalidStatus, doc.Kind.label(), doc.ID, doc.Status)
	}
	if shared.Exceeds(doc.PaidAmount.Add(amount), doc.TotalAmount) {
		return &shared.OverpaymentError{DocumentID: doc.ID, Total: doc.TotalAmount, Paid: doc.PaidAmount, Amount: amount}
	}
	return nil
}

func settledStatus(kind Kind, paid, total decimal.Decimal) Status {
	switch {
	case shared.Settled(paid, total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return kind.IssuedStatus()
	}
}

func controlAccount(settings mappings.BusinessFinanceSettings, kind Kind) (int64, error) {
	if kind == KindBill {
		return settings.Payable()
	}
	return settings.Receivable()
}

func accrualRule(doc Document, control int64) posting.Rule {
	if doc.Kind == KindBill {
		return posting.Bill{
			BusinessID: doc.BusinessID, DocumentID: doc.ID, Number: doc.Number, Date: doc.IssueDate,
			PayableAccountID: control, Items: doc.postingLines(),
		}
	}
	return posting.Invoice{
		BusinessID: doc.BusinessID, DocumentID: doc.ID, Number: doc.Number, Date: doc.IssueDate,
		ReceivableAccountID: control, Items: doc.postingLines(),
	}
}
