package assets

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memoryState struct {
	assets    map[int64]Asset
	settings  map[int64]Setting
	schedules map[int64]ScheduleRow
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		assets:    make(map[int64]Asset, len(s.assets)),
		settings:  make(map[int64]Setting, len(s.settings)),
		schedules: make(map[int64]ScheduleRow, len(s.schedules)),
	}
	for k, v := range s.assets {
		out.assets[k] = v
	}
	for k, v := range s.settings {
		out.settings[k] = v
	}
	for k, v := range s.schedules {
		out.schedules[k] = v
	}
	return out
}

type memoryRepo struct {
	store  *ledgertest.Store
	mu     sync.Mutex
	st     memoryState
	nextID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(store *ledgertest.Store) *memoryRepo {
	r := &memoryRepo{store: store, st: memoryState{}.clone()}
	store.OnDeleteEntry(func(entryID int64) {
		r.mu.Lock()
		defer r.mu.Unlock()
		for id, row := range r.st.schedules {
			if row.JournalEntryID != nil && *row.JournalEntryID == entryID {
				row.Status, row.JournalEntryID, row.PostedAt = StatusPending, nil, nil
				r.st.schedules[id] = row
			}
		}
	})
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Atomic(func() error {
		r.mu.Lock()
		saved := r.st.clone()
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{repo: r}); err != nil {
			r.mu.Lock()
			r.st = saved
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) WithRunTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.WithTx(ctx, fn)
}

// load assembles an asset; callers hold mu.
func (r *memoryRepo) load(id int64) (Asset, error) {
	a, ok := r.st.assets[id]
	if !ok {
		return Asset{}, shared.NotFound("fixed asset", id)
	}
	if s, ok := r.st.settings[id]; ok {
		a.Setting = &s
	}
	a.Schedule = nil
	for _, row := range r.st.schedules {
		if row.AssetID == id {
			a.Schedule = append(a.Schedule, row)
		}
	}
	sort.Slice(a.Schedule, func(i, j int) bool { return a.Schedule[i].PeriodNo < a.Schedule[j].PeriodNo })
	return a, nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

func (r *memoryRepo) List(_ context.Context, businessID int64) ([]Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Asset
	for id, a := range r.st.assets {
		if a.BusinessID != businessID {
			continue
		}
		full, err := r.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) DueSchedules(_ context.Context, businessID int64, asOf time.Time) ([]ScheduleRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ScheduleRow
	for _, row := range r.st.schedules {
		if r.st.assets[row.AssetID].BusinessID == businessID && row.Status == StatusPending && !row.Date.After(asOf) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].AssetID != out[j].AssetID {
			return out[i].AssetID < out[j].AssetID
		}
		return out[i].PeriodNo < out[j].PeriodNo
	})
	return out, nil
}

func (t *memoryTx) Ledger() journals.TxRepository {
	return t.repo.store.Ledger()
}

func (t *memoryTx) InsertAsset(_ context.Context, a Asset) (Asset, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, existing := range t.repo.st.assets {
		if existing.BusinessID == a.BusinessID && existing.Code == a.Code {
			return Asset{}, shared.Invalid("asset code %q already used", a.Code)
		}
	}
	t.repo.nextID++
	a.ID = t.repo.nextID
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	t.repo.st.assets[a.ID] = a
	return a, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Asset, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) SaveSetting(_ context.Context, s Setting) (Setting, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	s.UpdatedAt = time.Now().UTC()
	t.repo.st.settings[s.AssetID] = s
	return s, nil
}

func (t *memoryTx) DeletePendingSchedule(_ context.Context, assetID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for id, row := range t.repo.st.schedules {
		if row.AssetID == assetID && row.Status == StatusPending {
			delete(t.repo.st.schedules, id)
		}
	}
	return nil
}

func (t *memoryTx) InsertSchedule(_ context.Context, rows []ScheduleRow) ([]ScheduleRow, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	out := append([]ScheduleRow(nil), rows...)
	for i := range out {
		t.repo.nextID++
		out[i].ID = t.repo.nextID
		t.repo.st.schedules[out[i].ID] = out[i]
	}
	return out, nil
}

func (t *memoryTx) DeleteAsset(_ context.Context, id int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.st.assets[id]; !ok {
		return shared.NotFound("fixed asset", id)
	}
	delete(t.repo.st.assets, id)
	delete(t.repo.st.settings, id)
	for sid, row := range t.repo.st.schedules {
		if row.AssetID == id {
			delete(t.repo.st.schedules, sid)
		}
	}
	return nil
}

func (t *memoryTx) ScheduleForUpdate(_ context.Context, scheduleID int64) (ScheduleRow, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	row, ok := t.repo.st.schedules[scheduleID]
	if !ok {
		return ScheduleRow{}, shared.NotFound("depreciation schedule", scheduleID)
	}
	return row, nil
}

func (t *memoryTx) MarkPosted(_ context.Context, scheduleID int64, entryID *int64, at time.Time) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	row, ok := t.repo.st.schedules[scheduleID]
	if !ok {
		return shared.NotFound("depreciation schedule", scheduleID)
	}
	row.Status, row.JournalEntryID, row.PostedAt = StatusPosted, entryID, &at
	t.repo.st.schedules[scheduleID] = row
	return nil
}
