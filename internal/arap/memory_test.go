package arap

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memoryRepo struct {
	store     *ledgertest.Store
	mu        sync.Mutex
	docs      map[Kind]map[int64]Document
	sequences map[string]int64
	nextDoc   int64
	nextItem  int64
	nextPay   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(store *ledgertest.Store) *memoryRepo {
	r := &memoryRepo{store: store, docs: map[Kind]map[int64]Document{KindInvoice: {}, KindBill: {}}, sequences: map[string]int64{}}
	store.OnDeleteEntry(r.unlinkEntry)
	return r
}

// unlinkEntry mirrors ON DELETE SET NULL on journal_entry_id columns.
func (r *memoryRepo) unlinkEntry(entryID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, docs := range r.docs {
		for id, doc := range docs {
			if doc.JournalEntryID != nil && *doc.JournalEntryID == entryID {
				doc.JournalEntryID = nil
			}
			for i, p := range doc.Payments {
				if p.JournalEntryID != nil && *p.JournalEntryID == entryID {
					doc.Payments[i].JournalEntryID = nil
				}
			}
			r.docs[kind][id] = doc
		}
	}
}

func (r *memoryRepo) snapshot() map[Kind]map[int64]Document {
	out := make(map[Kind]map[int64]Document, len(r.docs))
	for kind, docs := range r.docs {
		out[kind] = make(map[int64]Document, len(docs))
		for id, doc := range docs {
			out[kind][id] = cloneDocument(doc)
		}
	}
	return out
}

func cloneDocument(doc Document) Document {
	doc.Items = append([]Item(nil), doc.Items...)
	doc.Payments = append([]Payment(nil), doc.Payments...)
	return doc
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Atomic(func() error {
		r.mu.Lock()
		saved := r.snapshot()
		sequences := maps.Clone(r.sequences)
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{repo: r}); err != nil {
			r.mu.Lock()
			r.docs = saved
			r.sequences = sequences
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) WithPaymentTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.WithTx(ctx, fn)
}

func (r *memoryRepo) Get(_ context.Context, kind Kind, id int64) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[kind][id]
	if !ok {
		return Document{}, shared.NotFound(kind.label(), id)
	}
	return cloneDocument(doc), nil
}

func (r *memoryRepo) sorted(kind Kind, keep func(Document) bool) []Document {
	var out []Document
	for _, doc := range r.docs[kind] {
		if keep(doc) {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(filter.Kind, func(d Document) bool {
		return (filter.BusinessID == 0 || d.BusinessID == filter.BusinessID) &&
			(filter.ContactID == 0 || d.ContactID == filter.ContactID) &&
			(filter.Status == "" || d.Status == filter.Status)
	})
	start := (filter.Page - 1) * filter.PerPage
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *memoryRepo) ListOpen(_ context.Context, kind Kind, businessID int64) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(kind, func(d Document) bool { return d.BusinessID == businessID && d.Status.Open() }), nil
}

func (t *memoryTx) Ledger() journals.TxRepository {
	return t.repo.store.Ledger()
}

func (t *memoryTx) NextNumber(_ context.Context, kind Kind, businessID int64) (string, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	key := fmt.Sprintf("%s/%d", kind, businessID)
	for {
		t.repo.sequences[key]++
		number := formatNumber(kind, t.repo.sequences[key])
		taken := false
		for _, doc := range t.repo.docs[kind] {
			if doc.BusinessID == businessID && doc.Number == number {
				taken = true
				break
			}
		}
		if !taken {
			return number, nil
		}
	}
}

func (t *memoryTx) Insert(_ context.Context, doc Document) (Document, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, existing := range t.repo.docs[doc.Kind] {
		if existing.BusinessID == doc.BusinessID && existing.Number == doc.Number {
			return Document{}, shared.Invalid("%s number %q already used", doc.Kind.label(), doc.Number)
		}
	}
	t.repo.nextDoc++
	doc.ID = t.repo.nextDoc
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	doc.Items = append([]Item(nil), doc.Items...)
	for i := range doc.Items {
		t.repo.nextItem++
		doc.Items[i].ID = t.repo.nextItem
	}
	t.repo.docs[doc.Kind][doc.ID] = cloneDocument(doc)
	return doc, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, kind Kind, id int64) (Document, error) {
	return t.repo.Get(ctx, kind, id)
}

func (t *memoryTx) UpdateState(_ context.Context, doc Document) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	stored, ok := t.repo.docs[doc.Kind][doc.ID]
	if !ok {
		return shared.NotFound(doc.Kind.label(), doc.ID)
	}
	stored.Status, stored.PaidAmount, stored.JournalEntryID, stored.IssueDate = doc.Status, doc.PaidAmount, doc.JournalEntryID, doc.IssueDate
	stored.UpdatedAt = time.Now().UTC()
	t.repo.docs[doc.Kind][doc.ID] = stored
	return nil
}

func (t *memoryTx) InsertPayment(_ context.Context, kind Kind, p Payment) (Payment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	doc, ok := t.repo.docs[kind][p.DocumentID]
	if !ok {
		return Payment{}, shared.NotFound(kind.label(), p.DocumentID)
	}
	t.repo.nextPay++
	p.ID = t.repo.nextPay
	p.CreatedAt = time.Now().UTC()
	doc.Payments = append(doc.Payments, p)
	t.repo.docs[kind][doc.ID] = doc
	return p, nil
}

func (t *memoryTx) LinkPaymentEntry(_ context.Context, kind Kind, paymentID, entryID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for id, doc := range t.repo.docs[kind] {
		for i := range doc.Payments {
			if doc.Payments[i].ID == paymentID {
				doc.Payments[i].JournalEntryID = &entryID
				t.repo.docs[kind][id] = doc
				return nil
			}
		}
	}
	return shared.NotFound("payment", paymentID)
}
