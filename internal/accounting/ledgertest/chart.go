package ledgertest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Chart returns the chart of accounts view of the store.
func (s *Store) Chart() accounts.Repository {
	return chartRepo{s: s}
}

type chartRepo struct {
	s *Store
}

var _ accounts.Repository = chartRepo{}

func (c chartRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return c.s.Atomic(func() error { return fn(ctx, chartTx(c)) })
}

func (c chartRepo) List(_ context.Context, filter accounts.ListFilter) ([]accounts.Account, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var out []accounts.Account
	for id := range c.s.st.accounts {
		acc := c.s.account(id)
		if filter.BusinessID != 0 && acc.BusinessID != filter.BusinessID {
			continue
		}
		switch filter.Kind {
		case accounts.KindHead:
			if !acc.IsHead() {
				continue
			}
		case accounts.KindPost:
			if !acc.IsPosting() {
				continue
			}
		}
		if filter.AccountType != "" {
			if acc.CategoryID == nil || c.s.st.categories[*acc.CategoryID].AccountType != filter.AccountType {
				continue
			}
		}
		if q := strings.ToLower(strings.TrimSpace(filter.Search)); q != "" &&
			!strings.Contains(strings.ToLower(acc.Code), q) && !strings.Contains(strings.ToLower(acc.Name), q) {
			continue
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BusinessID != out[j].BusinessID {
			return out[i].BusinessID < out[j].BusinessID
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (c chartRepo) Get(_ context.Context, id int64) (accounts.Account, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.st.accounts[id]; !ok {
		return accounts.Account{}, shared.NotFound("account", id)
	}
	return c.s.account(id), nil
}

func (c chartRepo) Categories(context.Context) ([]accounts.Category, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := make([]accounts.Category, 0, len(c.s.st.categories))
	for _, cat := range c.s.st.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type chartTx chartRepo

func (c chartTx) GetForUpdate(ctx context.Context, id int64) (accounts.Account, error) {
	return chartRepo(c).Get(ctx, id)
}

func (c chartTx) GetCategory(_ context.Context, id int64) (accounts.Category, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cat, ok := c.s.st.categories[id]
	if !ok {
		return accounts.Category{}, shared.NotFound("account category", id)
	}
	return cat, nil
}

func (c chartTx) CodeExists(_ context.Context, businessID int64, code string, excludeID int64) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, acc := range c.s.st.accounts {
		if acc.BusinessID == businessID && acc.Code == code && acc.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (c chartTx) IsDescendant(_ context.Context, ancestorID, candidateID int64) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for id := candidateID; ; {
		acc, ok := c.s.st.accounts[id]
		if !ok || acc.ParentID == nil {
			return false, nil
		}
		if *acc.ParentID == ancestorID {
			return true, nil
		}
		id = *acc.ParentID
	}
}

func (c chartTx) CountLines(_ context.Context, accountID int64) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	n := 0
	for _, e := range c.s.st.entries {
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				n++
			}
		}
	}
	return n, nil
}

func (c chartTx) CountChildren(_ context.Context, accountID int64) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	n := 0
	for _, acc := range c.s.st.accounts {
		if acc.ParentID != nil && *acc.ParentID == accountID {
			n++
		}
	}
	return n, nil
}

func (c chartTx) Insert(_ context.Context, acc accounts.Account) (accounts.Account, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	acc.ID = c.s.nextAccountID()
	acc.CreatedAt = time.Now().UTC()
	acc.UpdatedAt = acc.CreatedAt
	c.s.st.accounts[acc.ID] = acc
	return c.s.account(acc.ID), nil
}

func (c chartTx) Update(_ context.Context, acc accounts.Account) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.st.accounts[acc.ID]; !ok {
		return shared.NotFound("account", acc.ID)
	}
	acc.HasChildren = false
	c.s.st.accounts[acc.ID] = acc
	return nil
}

func (c chartTx) Delete(_ context.Context, id int64) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	delete(c.s.st.accounts, id)
	return nil
}
