package savings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memoryRepo struct {
	store   *ledgertest.Store
	mu      sync.Mutex
	members map[int64]Member
	types   map[int64]Type
	rows    []Transaction
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(store *ledgertest.Store) *memoryRepo {
	r := &memoryRepo{store: store, members: map[int64]Member{}, types: map[int64]Type{}}
	store.OnDeleteEntry(func(entryID int64) {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i := range r.rows {
			if r.rows[i].JournalEntryID != nil && *r.rows[i].JournalEntryID == entryID {
				r.rows[i].JournalEntryID = nil
			}
		}
	})
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Atomic(func() error {
		r.mu.Lock()
		saved := append([]Transaction(nil), r.rows...)
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{repo: r}); err != nil {
			r.mu.Lock()
			r.rows = saved
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) Member(_ context.Context, id int64) (Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return Member{}, shared.NotFound("member", id)
	}
	return m, nil
}

func (r *memoryRepo) CreateMember(_ context.Context, m Member) (Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.members {
		if existing.BusinessID == m.BusinessID && existing.Number == m.Number {
			return Member{}, shared.Invalid("member number %q already used", m.Number)
		}
	}
	r.nextID++
	m.ID = r.nextID
	m.CreatedAt = time.Now().UTC()
	r.members[m.ID] = m
	return m, nil
}

func (r *memoryRepo) Types(_ context.Context, businessID int64) ([]Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Type
	for _, t := range r.types {
		if t.BusinessID == businessID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) CreateType(_ context.Context, t Type) (Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.types {
		if existing.BusinessID == t.BusinessID && existing.Code == t.Code {
			return Type{}, shared.Invalid("savings type %q already exists", t.Code)
		}
	}
	r.nextID++
	t.ID = r.nextID
	r.types[t.ID] = t
	return t, nil
}

func (r *memoryRepo) Balances(_ context.Context, memberID int64) ([]Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byType := map[int64]*Balance{}
	var order []int64
	for _, row := range r.rows {
		if row.MemberID != memberID {
			continue
		}
		b := byType[row.SavingsTypeID]
		if b == nil {
			t := r.types[row.SavingsTypeID]
			b = &Balance{SavingsTypeID: t.ID, Code: t.Code, Name: t.Name}
			byType[t.ID] = b
			order = append(order, t.ID)
		}
		if row.Kind == posting.Deposit {
			b.Deposits = b.Deposits.Add(row.Amount)
		} else {
			b.Withdrawals = b.Withdrawals.Add(row.Amount)
		}
	}
	out := make([]Balance, 0, len(order))
	for _, id := range order {
		b := *byType[id]
		b.Balance = b.Deposits.Sub(b.Withdrawals)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) Transactions(_ context.Context, memberID int64) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, row := range r.rows {
		if row.MemberID == memberID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *memoryTx) Ledger() journals.TxRepository {
	return t.repo.store.Ledger()
}

func (t *memoryTx) LockMember(ctx context.Context, memberID int64) error {
	_, err := t.repo.Member(ctx, memberID)
	return err
}

func (t *memoryTx) BalanceOf(_ context.Context, memberID, typeID int64) (decimal.Decimal, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	balance := decimal.Zero
	for _, row := range t.repo.rows {
		if row.MemberID != memberID || row.SavingsTypeID != typeID {
			continue
		}
		if row.Kind == posting.Deposit {
			balance = balance.Add(row.Amount)
		} else {
			balance = balance.Sub(row.Amount)
		}
	}
	return balance, nil
}

func (t *memoryTx) InsertTransaction(_ context.Context, row Transaction) (Transaction, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	row.ID = t.repo.nextID
	row.CreatedAt = time.Now().UTC()
	t.repo.rows = append(t.repo.rows, row)
	return row, nil
}
