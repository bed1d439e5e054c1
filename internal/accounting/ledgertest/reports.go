package ledgertest

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var _ reports.Repository = (*Store)(nil)

// Businesses implements reports.Repository.
func (s *Store) Businesses(context.Context) ([]reports.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reports.Business(nil), s.st.businesses...), nil
}

// Accounts implements reports.Repository.
func (s *Store) Accounts(_ context.Context, businessIDs []int64) ([]reports.AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[int64]bool, len(businessIDs))
	for _, id := range businessIDs {
		keep[id] = true
	}
	var out []reports.AccountInfo
	for id, acc := range s.st.accounts {
		if len(keep) > 0 && !keep[acc.BusinessID] {
			continue
		}
		out = append(out, s.info(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].BusinessID < out[j].BusinessID
	})
	return out, nil
}

// Account implements reports.Repository.
func (s *Store) Account(_ context.Context, id int64) (reports.AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.accounts[id]; !ok {
		return reports.AccountInfo{}, shared.NotFound("account", id)
	}
	return s.info(id), nil
}

// Totals implements reports.Repository.
func (s *Store) Totals(_ context.Context, accountIDs []int64, from *time.Time, to time.Time) (map[int64]reports.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := idSet(accountIDs)
	out := make(map[int64]reports.Totals)
	for _, e := range s.st.entries {
		if e.EntryDate.After(to) || (from != nil && e.EntryDate.Before(*from)) {
			continue
		}
		for _, l := range e.Lines {
			if !want[l.AccountID] {
				continue
			}
			out[l.AccountID] = add(out[l.AccountID], l)
		}
	}
	return out, nil
}

// Lines implements reports.Repository.
func (s *Store) Lines(_ context.Context, accountIDs []int64, from, to time.Time) ([]reports.PostingLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := idSet(accountIDs)
	var out []reports.PostingLine
	for _, e := range s.st.entries {
		if e.EntryDate.Before(from) || e.EntryDate.After(to) {
			continue
		}
		ref := ""
		if e.ReferenceNumber != nil {
			ref = *e.ReferenceNumber
		}
		for _, l := range e.Lines {
			if !want[l.AccountID] {
				continue
			}
			out = append(out, reports.PostingLine{
				EntryID: e.ID, LineID: l.ID, BusinessID: e.BusinessID, AccountID: l.AccountID,
				Date: e.EntryDate, Description: e.Description, Reference: ref,
				EntryType: l.EntryType, Amount: l.Amount,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].EntryID != out[j].EntryID {
			return out[i].EntryID < out[j].EntryID
		}
		return out[i].LineID < out[j].LineID
	})
	return out, nil
}

// CashCounterTotals implements reports.Repository.
func (s *Store) CashCounterTotals(_ context.Context, cashAccountIDs []int64, from, to time.Time) (map[int64]reports.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cash := idSet(cashAccountIDs)
	out := make(map[int64]reports.Totals)
	for _, e := range s.st.entries {
		if e.EntryDate.Before(from) || e.EntryDate.After(to) {
			continue
		}
		hit := false
		for _, l := range e.Lines {
			if cash[l.AccountID] {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		for _, l := range e.Lines {
			if !cash[l.AccountID] {
				out[l.AccountID] = add(out[l.AccountID], l)
			}
		}
	}
	return out, nil
}

// RawTypeTotals implements reports.Repository.
func (s *Store) RawTypeTotals(_ context.Context, businessID int64, to time.Time) (map[accounts.AccountType]reports.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[accounts.AccountType]reports.Totals)
	for _, e := range s.st.entries {
		if e.BusinessID != businessID || e.EntryDate.After(to) {
			continue
		}
		for _, l := range e.Lines {
			acc := s.st.accounts[l.AccountID]
			if acc.CategoryID == nil {
				continue
			}
			typ := s.st.categories[*acc.CategoryID].AccountType
			out[typ] = add(out[typ], l)
		}
	}
	return out, nil
}

// UnbalancedEntries implements reports.Repository.
func (s *Store) UnbalancedEntries(_ context.Context, businessID int64) ([]reports.UnbalancedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reports.UnbalancedEntry
	for _, e := range s.st.entries {
		if e.BusinessID != businessID {
			continue
		}
		debit, credit := e.Totals()
		if len(e.Lines) < 2 || !shared.Balanced(debit, credit) {
			out = append(out, reports.UnbalancedEntry{EntryID: e.ID, BusinessID: e.BusinessID, Debit: debit, Credit: credit})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

// info builds the report read model; callers hold mu.
func (s *Store) info(id int64) reports.AccountInfo {
	acc := s.account(id)
	out := reports.AccountInfo{
		ID:          acc.ID,
		BusinessID:  acc.BusinessID,
		Code:        acc.Code,
		Name:        acc.Name,
		ParentID:    acc.ParentID,
		HasChildren: acc.HasChildren,
		IsActive:    acc.IsActive,
	}
	if acc.CategoryID != nil {
		if cat, ok := s.st.categories[*acc.CategoryID]; ok {
			out.Category = &cat
		}
	}
	return out
}

func idSet(ids []int64) map[int64]bool {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func add(t reports.Totals, l journals.JournalLine) reports.Totals {
	if l.EntryType == shared.Debit {
		t.Debit = t.Debit.Add(l.Amount)
	} else {
		t.Credit = t.Credit.Add(l.Amount)
	}
	return t
}
