package savings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service posts member savings submissions.
type Service struct {
	repo     Repository
	observer journals.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the savings service.
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

// group collects the items sharing one settlement account.
type group struct {
	settlement int64
	items      []ItemInput
	types      []Type
}

// PostSubmission posts one journal entry per settlement account and one
// history row per item. Withdrawals may not exceed the member balance.
func (s *Service) PostSubmission(ctx context.Context, settings mappings.BusinessFinanceSettings, in SubmissionInput) (Result, error) {
	kind := posting.SavingsKind(strings.ToUpper(string(in.Kind)))
	if kind != posting.Deposit && kind != posting.Withdrawal {
		return Result{}, shared.Invalid("unknown savings transaction type %q", in.Kind)
	}
	if len(in.Items) == 0 {
		return Result{}, shared.Invalid("at least one item required")
	}
	member, err := s.repo.Member(ctx, in.MemberID)
	if err != nil {
		return Result{}, err
	}
	if settings.BusinessID != member.BusinessID {
		return Result{}, shared.Invalid("settings belong to business %d, member to %d", settings.BusinessID, member.BusinessID)
	}
	types, err := s.repo.Types(ctx, member.BusinessID)
	if err != nil {
		return Result{}, err
	}
	byID := make(map[int64]Type, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}

	var groups []*group
	index := make(map[int64]*group)
	requested := make(map[int64]decimal.Decimal)
	for i, item := range in.Items {
		item.Amount = shared.Round2(item.Amount)
		if !item.Amount.IsPositive() {
			return Result{}, shared.Invalid("item %d: amount must be positive", i+1)
		}
		t, ok := byID[item.SavingsTypeID]
		if !ok {
			return Result{}, shared.NotFound("savings type", item.SavingsTypeID)
		}
		settlement, err := settings.CashOr(t.SettlementAccountID)
		if err != nil {
			return Result{}, err
		}
		g := index[settlement]
		if g == nil {
			g = &group{settlement: settlement}
			index[settlement] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, item)
		g.types = append(g.types, t)
		requested[t.ID] = requested[t.ID].Add(item.Amount)
	}

	date := journals.DateOnly(in.Date)
	if date.IsZero() {
		date = journals.DateOnly(s.now())
	}
	submission := in.Submission
	if submission == uuid.Nil {
		submission = uuid.New()
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockMember(ctx, member.ID); err != nil {
			return err
		}
		if kind == posting.Withdrawal {
			for typeID, amount := range requested {
				balance, err := tx.BalanceOf(ctx, member.ID, typeID)
				if err != nil {
					return err
				}
				if amount.GreaterThan(balance) {
					return fmt.Errorf("%w: member %s has %s in %s, requested %s", shared.ErrInsufficientSavings,
						member.Number, balance.StringFixed(2), byID[typeID].Code, amount.StringFixed(2))
				}
			}
		}
		for _, g := range groups {
			lines := make([]posting.Line, len(g.items))
			for i, item := range g.items {
				lines[i] = posting.Line{AccountID: g.types[i].SavingsAccountID, Amount: item.Amount}
			}
			entry, err := posting.Apply(ctx, tx.Ledger(), posting.SavingsTransaction{
				BusinessID:          member.BusinessID,
				MemberID:            member.ID,
				MemberNumber:        member.Number,
				Kind:                kind,
				Date:                date,
				SettlementAccountID: g.settlement,
				Items:               lines,
				Submission:          submission,
			})
			if err != nil {
				return err
			}
			result.Journals = append(result.Journals, entry)
			for _, item := range g.items {
				entryID := entry.ID
				row, err := tx.InsertTransaction(ctx, Transaction{
					MemberID:       member.ID,
					SavingsTypeID:  item.SavingsTypeID,
					Kind:           kind,
					Amount:         item.Amount,
					Date:           date,
					Note:           item.Note,
					JournalEntryID: &entryID,
				})
				if err != nil {
					return err
				}
				result.Transactions = append(result.Transactions, row)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	journals.Notify(ctx, s.observer, posting.ModuleSavings, result.JournalsCreated())
	s.logger.Info("savings posted", slog.Int64("member_id", member.ID), slog.String("kind", string(kind)),
		slog.Int("journals", result.JournalsCreated()))
	return result, nil
}

// Balances returns the member's balance per savings type.
func (s *Service) Balances(ctx context.Context, memberID int64) ([]Balance, error) {
	if _, err := s.repo.Member(ctx, memberID); err != nil {
		return nil, err
	}
	return s.repo.Balances(ctx, memberID)
}

// Transactions returns the member's savings history.
func (s *Service) Transactions(ctx context.Context, memberID int64) ([]Transaction, error) {
	if _, err := s.repo.Member(ctx, memberID); err != nil {
		return nil, err
	}
	return s.repo.Transactions(ctx, memberID)
}

// CreateMember registers a member.
func (s *Service) CreateMember(ctx context.Context, m Member) (Member, error) {
	m.Number, m.Name = strings.TrimSpace(m.Number), strings.TrimSpace(m.Name)
	if m.BusinessID <= 0 || m.Number == "" || m.Name == "" {
		return Member{}, shared.Invalid("business, number and name are required")
	}
	return s.repo.CreateMember(ctx, m)
}

// CreateType registers a savings type.
func (s *Service) CreateType(ctx context.Context, t Type) (Type, error) {
	t.Code, t.Name = strings.ToUpper(strings.TrimSpace(t.Code)), strings.TrimSpace(t.Name)
	if t.BusinessID <= 0 || t.Code == "" || t.Name == "" || t.SavingsAccountID <= 0 {
		return Type{}, shared.Invalid("business, code, name and savings account are required")
	}
	return s.repo.CreateType(ctx, t)
}

// Types lists the savings types of a business.
func (s *Service) Types(ctx context.Context, businessID int64) ([]Type, error) {
	return s.repo.Types(ctx, businessID)
}

// Member returns one member.
func (s *Service) Member(ctx context.Context, id int64) (Member, error) {
	return s.repo.Member(ctx, id)
}
