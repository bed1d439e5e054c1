// Package ledgertest provides an in-memory ledger store implementing the
// journal, chart of accounts and report repositories, for package tests.
package ledgertest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type linkKey struct {
	module string
	ref    uuid.UUID
}

type state struct {
	businesses []reports.Business
	categories map[int64]accounts.Category
	accounts   map[int64]accounts.Account
	entries    map[int64]journals.JournalEntry
	links      map[linkKey]int64
	nextAcc    int64
	nextEntry  int64
	nextLine   int64
}

func (s state) clone() state {
	out := s
	out.businesses = append([]reports.Business(nil), s.businesses...)
	out.categories = make(map[int64]accounts.Category, len(s.categories))
	for k, v := range s.categories {
		out.categories[k] = v
	}
	out.accounts = make(map[int64]accounts.Account, len(s.accounts))
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	out.entries = make(map[int64]journals.JournalEntry, len(s.entries))
	for k, v := range s.entries {
		v.Lines = append([]journals.JournalLine(nil), v.Lines...)
		out.entries[k] = v
	}
	out.links = make(map[linkKey]int64, len(s.links))
	for k, v := range s.links {
		out.links[k] = v
	}
	return out
}

// Store is a transactional in-memory ledger. Transactions are serialized and
// roll back to a snapshot when the callback fails.
type Store struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	st       state
	onDelete []func(entryID int64)
}

// New returns an empty store.
func New() *Store {
	return &Store{st: state{
		categories: make(map[int64]accounts.Category),
		accounts:   make(map[int64]accounts.Account),
		entries:    make(map[int64]journals.JournalEntry),
		links:      make(map[linkKey]int64),
	}}
}

// OnDeleteEntry registers a hook run inside the deleting transaction.
func (s *Store) OnDeleteEntry(fn func(entryID int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

// AddBusiness registers a business.
func (s *Store) AddBusiness(id int64, code, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.businesses = append(s.st.businesses, reports.Business{ID: id, Code: code, Name: name})
	sort.Slice(s.st.businesses, func(i, j int) bool { return s.st.businesses[i].ID < s.st.businesses[j].ID })
}

// AddCategory registers a category.
func (s *Store) AddCategory(cat accounts.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.categories[cat.ID] = cat
}

// AddAccount registers an account. A zero ID is assigned.
func (s *Store) AddAccount(acc accounts.Account) accounts.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.ID == 0 {
		acc.ID = s.nextAccountID()
	}
	if acc.ID > s.st.nextAcc {
		s.st.nextAcc = acc.ID
	}
	acc.HasChildren = false
	s.st.accounts[acc.ID] = acc
	return s.account(acc.ID)
}

// Entries returns every entry ordered by id.
func (s *Store) Entries() []journals.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journals.JournalEntry, 0, len(s.st.entries))
	for _, e := range s.st.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entry returns one entry.
func (s *Store) Entry(id int64) (journals.JournalEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.entries[id]
	return e, ok
}

// ForceLines overwrites the lines of an entry without validation, to plant
// anomalies for integrity checks.
func (s *Store) ForceLines(entryID int64, lines []journals.JournalLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.st.entries[entryID]
	e.Lines = lines
	s.st.entries[entryID] = e
}

// WithTx implements journals.Repository.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return s.Atomic(func() error { return fn(ctx, &txView{s: s}) })
}

// Atomic serializes fn against other transactions and restores the ledger
// when it fails. Other in-memory repositories wrap their own state around it.
func (s *Store) Atomic(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	saved := s.st.clone()
	s.mu.Unlock()
	if err := fn(); err != nil {
		s.mu.Lock()
		s.st = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

// Ledger returns the journal transaction view for use inside Atomic.
func (s *Store) Ledger() journals.TxRepository {
	return &txView{s: s}
}

// Get implements journals.Repository.
func (s *Store) Get(_ context.Context, id int64) (journals.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.entries[id]
	if !ok {
		return journals.JournalEntry{}, shared.NotFound("journal entry", id)
	}
	return e, nil
}

// List implements journals.Repository.
func (s *Store) List(_ context.Context, filter journals.ListFilter) ([]journals.JournalEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []journals.JournalEntry
	for _, e := range s.st.entries {
		if filter.BusinessID != 0 && e.BusinessID != filter.BusinessID {
			continue
		}
		if filter.From != nil && e.EntryDate.Before(journals.DateOnly(*filter.From)) {
			continue
		}
		if filter.To != nil && e.EntryDate.After(journals.DateOnly(*filter.To)) {
			continue
		}
		if filter.AccountID != 0 && !touches(e, filter.AccountID) {
			continue
		}
		if q := strings.ToLower(strings.TrimSpace(filter.Search)); q != "" {
			ref := ""
			if e.ReferenceNumber != nil {
				ref = *e.ReferenceNumber
			}
			if !strings.Contains(strings.ToLower(e.Description), q) && !strings.Contains(strings.ToLower(ref), q) {
				continue
			}
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].EntryDate.Equal(matched[j].EntryDate) {
			return matched[i].EntryDate.After(matched[j].EntryDate)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func touches(e journals.JournalEntry, accountID int64) bool {
	for _, l := range e.Lines {
		if l.AccountID == accountID {
			return true
		}
	}
	return false
}

// account returns the account with HasChildren derived; callers hold mu.
func (s *Store) account(id int64) accounts.Account {
	acc := s.st.accounts[id]
	for _, other := range s.st.accounts {
		if other.ParentID != nil && *other.ParentID == id {
			acc.HasChildren = true
			break
		}
	}
	return acc
}

func (s *Store) nextAccountID() int64 {
	s.st.nextAcc++
	return s.st.nextAcc
}

type txView struct {
	s *Store
}

func (t *txView) PostingAccounts(_ context.Context, ids []int64) (map[int64]journals.AccountRef, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make(map[int64]journals.AccountRef, len(ids))
	for _, id := range ids {
		if _, ok := t.s.st.accounts[id]; !ok {
			continue
		}
		acc := t.s.account(id)
		out[id] = journals.AccountRef{ID: id, BusinessID: acc.BusinessID, HasChildren: acc.HasChildren, IsActive: acc.IsActive}
	}
	return out, nil
}

func (t *txView) InsertEntry(_ context.Context, in journals.EntryInput) (journals.JournalEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.st.nextEntry++
	now := time.Now().UTC()
	e := journals.JournalEntry{
		ID:           t.s.st.nextEntry,
		BusinessID:   in.BusinessID,
		EntryDate:    in.Date,
		Description:  in.Description,
		SourceModule: in.SourceModule,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Reference != "" {
		ref := in.Reference
		e.ReferenceNumber = &ref
	}
	if in.CreatedBy != 0 {
		by := in.CreatedBy
		e.CreatedBy = &by
	}
	if in.SourceID != uuid.Nil {
		src := in.SourceID
		e.SourceID = &src
	}
	t.s.st.entries[e.ID] = e
	return e, nil
}

func (t *txView) InsertLines(_ context.Context, entryID int64, lines []journals.LineInput) ([]journals.JournalLine, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.st.entries[entryID]
	if !ok {
		return nil, shared.NotFound("journal entry", entryID)
	}
	out := make([]journals.JournalLine, len(lines))
	for i, l := range lines {
		t.s.st.nextLine++
		out[i] = journals.JournalLine{ID: t.s.st.nextLine, JournalEntryID: entryID, LineNo: i + 1,
			AccountID: l.AccountID, EntryType: l.EntryType, Amount: l.Amount}
	}
	e.Lines = append(append([]journals.JournalLine(nil), e.Lines...), out...)
	t.s.st.entries[entryID] = e
	return out, nil
}

func (t *txView) DeleteLines(_ context.Context, entryID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e := t.s.st.entries[entryID]
	e.Lines = nil
	t.s.st.entries[entryID] = e
	return nil
}

func (t *txView) GetForUpdate(_ context.Context, id int64) (journals.JournalEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.st.entries[id]
	if !ok {
		return journals.JournalEntry{}, shared.NotFound("journal entry", id)
	}
	return e, nil
}

func (t *txView) UpdateHeader(_ context.Context, entry journals.JournalEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.st.entries[entry.ID]
	if !ok {
		return shared.NotFound("journal entry", entry.ID)
	}
	e.EntryDate, e.Description, e.ReferenceNumber = entry.EntryDate, entry.Description, entry.ReferenceNumber
	e.UpdatedAt = time.Now().UTC()
	t.s.st.entries[entry.ID] = e
	return nil
}

func (t *txView) DeleteEntry(_ context.Context, id int64) error {
	t.s.mu.Lock()
	if _, ok := t.s.st.entries[id]; !ok {
		t.s.mu.Unlock()
		return shared.NotFound("journal entry", id)
	}
	delete(t.s.st.entries, id)
	for k, v := range t.s.st.links {
		if v == id {
			delete(t.s.st.links, k)
		}
	}
	hooks := append([]func(int64){}, t.s.onDelete...)
	t.s.mu.Unlock()
	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

func (t *txView) LinkSource(_ context.Context, module string, ref uuid.UUID, entryID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	key := linkKey{module: module, ref: ref}
	if _, ok := t.s.st.links[key]; ok {
		return shared.ErrSourceAlreadyLinked
	}
	t.s.st.links[key] = entryID
	return nil
}

// Post validates and writes one entry in its own transaction.
func (s *Store) Post(ctx context.Context, in journals.EntryInput) (journals.JournalEntry, error) {
	var entry journals.JournalEntry
	err := s.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		var err error
		entry, err = journals.Post(ctx, tx, in)
		return err
	})
	return entry, err
}
