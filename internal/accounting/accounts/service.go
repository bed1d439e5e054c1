package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records chart changes after commit.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// ModuleChart tags change notifications caused by chart edits. Reports
// derive categories, codes and the tree from the chart, so cached results
// are stale after any of these commits.
const ModuleChart = "CHART"

// Service manages the chart of accounts.
type Service struct {
	repo     Repository
	audit    AuditPort
	observer journals.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the chart of accounts service.
func NewService(repo Repository, audit AuditPort, observer journals.Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, observer: observer, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns accounts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	return s.repo.List(ctx, filter)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Categories returns every account category.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.Categories(ctx)
}

// Create opens a new account under the optional parent.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	code := strings.TrimSpace(in.Code)
	name := strings.TrimSpace(in.Name)
	if in.BusinessID == 0 {
		return Account{}, shared.Invalid("business required")
	}
	if code == "" || name == "" {
		return Account{}, shared.Invalid("code and name required")
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.CodeExists(ctx, in.BusinessID, code, 0)
		if err != nil {
			return err
		}
		if exists {
			return &shared.DuplicateCodeError{BusinessID: in.BusinessID, Code: code}
		}
		acc := Account{BusinessID: in.BusinessID, Code: code, Name: name, CategoryID: in.CategoryID, IsActive: true}
		if in.ParentID != nil {
			categoryID, err := s.attachParent(ctx, tx, acc, *in.ParentID, in.CategoryID)
			if err != nil {
				return err
			}
			acc.ParentID = in.ParentID
			acc.CategoryID = categoryID
		}
		if acc.CategoryID != nil {
			if _, err := tx.GetCategory(ctx, *acc.CategoryID); err != nil {
				return err
			}
		}
		created, err = tx.Insert(ctx, acc)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	journals.Notify(ctx, s.observer, ModuleChart, 1)
	s.record(ctx, "account.create", created.ID, map[string]any{"code": created.Code, "business_id": created.BusinessID})
	return created, nil
}

// Update applies changes to an account.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Account, error) {
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.Code != nil {
			code := strings.TrimSpace(*in.Code)
			if code == "" {
				return shared.Invalid("code required")
			}
			if code != acc.Code {
				exists, err := tx.CodeExists(ctx, acc.BusinessID, code, acc.ID)
				if err != nil {
					return err
				}
				if exists {
					return &shared.DuplicateCodeError{BusinessID: acc.BusinessID, Code: code}
				}
			}
			acc.Code = code
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return shared.Invalid("name required")
			}
			acc.Name = name
		}
		if in.IsActive != nil {
			acc.IsActive = *in.IsActive
		}
		categoryID := acc.CategoryID
		if in.CategoryID != nil {
			categoryID = in.CategoryID
			if _, err := tx.GetCategory(ctx, *categoryID); err != nil {
				return err
			}
		}
		switch {
		case in.ClearParent:
			acc.ParentID = nil
		case in.ParentID != nil:
			if *in.ParentID == acc.ID {
				return shared.Invalid("account %d cannot be its own parent", acc.ID)
			}
			cyclic, err := tx.IsDescendant(ctx, acc.ID, *in.ParentID)
			if err != nil {
				return err
			}
			if cyclic {
				return shared.Invalid("account %d is a descendant of %d", *in.ParentID, acc.ID)
			}
			acc.ParentID = in.ParentID
		}
		if acc.ParentID != nil {
			resolved, err := s.attachParent(ctx, tx, acc, *acc.ParentID, categoryID)
			if err != nil {
				return err
			}
			categoryID = resolved
		}
		acc.CategoryID = categoryID
		if err := tx.Update(ctx, acc); err != nil {
			return err
		}
		acc.UpdatedAt = s.now()
		updated = acc
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	journals.Notify(ctx, s.observer, ModuleChart, 1)
	s.record(ctx, "account.update", updated.ID, map[string]any{"code": updated.Code})
	return updated, nil
}

// Delete removes an account that has no journal lines and no children.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		lines, err := tx.CountLines(ctx, id)
		if err != nil {
			return err
		}
		if lines > 0 {
			return &shared.AccountInUseError{AccountID: id, Reason: fmt.Sprintf("is referenced by %d journal lines", lines)}
		}
		children, err := tx.CountChildren(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return &shared.AccountInUseError{AccountID: id, Reason: fmt.Sprintf("has %d child accounts", children)}
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	journals.Notify(ctx, s.observer, ModuleChart, 1)
	s.record(ctx, "account.delete", id, nil)
	return nil
}

// attachParent validates the parent link and returns the effective category.
func (s *Service) attachParent(ctx context.Context, tx TxRepository, acc Account, parentID int64, categoryID *int64) (*int64, error) {
	parent, err := tx.GetForUpdate(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.BusinessID != acc.BusinessID {
		return nil, shared.Invalid("parent %d belongs to another business", parentID)
	}
	if !parent.HasChildren {
		lines, err := tx.CountLines(ctx, parent.ID)
		if err != nil {
			return nil, err
		}
		if lines > 0 {
			return nil, &shared.AccountInUseError{AccountID: parent.ID, Reason: "already carries postings and cannot become a head account"}
		}
	}
	if parent.CategoryID == nil {
		return categoryID, nil
	}
	if categoryID == nil {
		inherited := *parent.CategoryID
		return &inherited, nil
	}
	if *categoryID != *parent.CategoryID {
		return nil, &shared.CategoryMismatchError{ParentID: parent.ID, ParentCategoryID: *parent.CategoryID, CategoryID: *categoryID}
	}
	return categoryID, nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, internalShared.AuditLog{
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit account change", slog.String("action", action), slog.Int64("account_id", id), slog.Any("error", err))
	}
}
