package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service manages fixed assets and their depreciation.
type Service struct {
	repo     Repository
	observer journals.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the asset service.
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

// CreateAsset registers an asset and, when a setting is given, its schedule.
func (s *Service) CreateAsset(ctx context.Context, in AssetInput) (Asset, error) {
	asset := Asset{
		BusinessID:      in.BusinessID,
		Code:            strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:            strings.TrimSpace(in.Name),
		AcquisitionDate: journals.DateOnly(in.AcquisitionDate),
		AcquisitionCost: shared.Round2(in.AcquisitionCost),
		AssetAccountID:  in.AssetAccountID,
	}
	if asset.BusinessID <= 0 || asset.Code == "" || asset.Name == "" {
		return Asset{}, shared.Invalid("business, code and name are required")
	}
	if in.AcquisitionDate.IsZero() {
		return Asset{}, shared.Invalid("acquisition date required")
	}
	if asset.AcquisitionCost.IsNegative() {
		return Asset{}, shared.Invalid("acquisition cost cannot be negative")
	}
	if asset.AssetAccountID <= 0 {
		return Asset{}, shared.Invalid("asset account required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := journals.RequirePostingAccounts(ctx, tx.Ledger(), asset.BusinessID, asset.AssetAccountID); err != nil {
			return err
		}
		created, err := tx.InsertAsset(ctx, asset)
		if err != nil {
			return err
		}
		asset = created
		if in.Setting == nil {
			return nil
		}
		return s.replaceSetting(ctx, tx, &asset, *in.Setting)
	})
	if err != nil {
		return Asset{}, err
	}
	s.logger.Info("fixed asset created", slog.Int64("asset_id", asset.ID), slog.Int("periods", len(asset.Schedule)))
	return asset, nil
}

// UpdateSetting replaces the depreciation setting and regenerates the
// schedule. It is refused once any period has been posted.
func (s *Service) UpdateSetting(ctx context.Context, assetID int64, in SettingInput) (Asset, error) {
	var asset Asset
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if asset, err = tx.GetForUpdate(ctx, assetID); err != nil {
			return err
		}
		if posted := asset.postedRows(); posted > 0 {
			return &shared.AssetHasPostedDepreciationError{AssetID: asset.ID, Posted: posted}
		}
		return s.replaceSetting(ctx, tx, &asset, in)
	})
	if err != nil {
		return Asset{}, err
	}
	return asset, nil
}

func (s *Service) replaceSetting(ctx context.Context, tx TxRepository, asset *Asset, in SettingInput) error {
	setting := Setting{
		AssetID:              asset.ID,
		StartDate:            journals.DateOnly(in.StartDate),
		UsefulLifeMonths:     in.UsefulLifeMonths,
		SalvageValue:         shared.Round2(in.SalvageValue),
		ExpenseAccountID:     in.ExpenseAccountID,
		AccumulatedAccountID: in.AccumulatedAccountID,
	}
	rows, err := GenerateSchedule(*asset, setting)
	if err != nil {
		return err
	}
	if err := journals.RequirePostingAccounts(ctx, tx.Ledger(), asset.BusinessID, setting.ExpenseAccountID, setting.AccumulatedAccountID); err != nil {
		return err
	}
	if setting, err = tx.SaveSetting(ctx, setting); err != nil {
		return err
	}
	if err := tx.DeletePendingSchedule(ctx, asset.ID); err != nil {
		return err
	}
	if rows, err = tx.InsertSchedule(ctx, rows); err != nil {
		return err
	}
	asset.Setting = &setting
	asset.Schedule = rows
	return nil
}

// DeleteAsset removes an asset with no posted depreciation.
func (s *Service) DeleteAsset(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		asset, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if posted := asset.postedRows(); posted > 0 {
			return &shared.AssetHasPostedDepreciationError{AssetID: asset.ID, Posted: posted}
		}
		return tx.DeleteAsset(ctx, id)
	})
}

// Get returns an asset with its setting and schedule.
func (s *Service) Get(ctx context.Context, id int64) (Asset, error) {
	return s.repo.Get(ctx, id)
}

// List returns the assets of a business.
func (s *Service) List(ctx context.Context, businessID int64) ([]Asset, error) {
	if businessID <= 0 {
		return nil, shared.Invalid("business_id is required")
	}
	return s.repo.List(ctx, businessID)
}

// RunDepreciation posts one PENDING schedule row.
func (s *Service) RunDepreciation(ctx context.Context, scheduleID int64) (RunResult, error) {
	var result RunResult
	err := s.repo.WithRunTx(ctx, func(ctx context.Context, tx TxRepository) error {
		row, err := tx.ScheduleForUpdate(ctx, scheduleID)
		if err != nil {
			return err
		}
		if row.Status == StatusPosted {
			return fmt.Errorf("%w: schedule %d", shared.ErrDepreciationPosted, row.ID)
		}
		asset, err := tx.GetForUpdate(ctx, row.AssetID)
		if err != nil {
			return err
		}
		if asset.Setting == nil {
			return shared.Invalid("asset %d has no depreciation setting", asset.ID)
		}
		result = RunResult{ScheduleID: row.ID, AssetID: asset.ID, PeriodNo: row.PeriodNo}
		if row.Amount.IsPositive() {
			entry, err := posting.Apply(ctx, tx.Ledger(), posting.DepreciationRun{
				BusinessID:           asset.BusinessID,
				ScheduleID:           row.ID,
				AssetCode:            asset.Code,
				PeriodNo:             row.PeriodNo,
				Date:                 row.Date,
				ExpenseAccountID:     asset.Setting.ExpenseAccountID,
				AccumulatedAccountID: asset.Setting.AccumulatedAccountID,
				Amount:               row.Amount,
			})
			if err != nil {
				return err
			}
			result.JournalEntryID = &entry.ID
		}
		return tx.MarkPosted(ctx, row.ID, result.JournalEntryID, s.now().UTC())
	})
	if err != nil {
		return RunResult{}, err
	}
	if result.JournalEntryID != nil {
		journals.Notify(ctx, s.observer, posting.ModuleDepreciation, 1)
	}
	return result, nil
}

// RunDueDepreciation posts every PENDING row of the business dated on or
// before asOf, each in its own transaction. Rows that fail are reported and
// the run continues.
func (s *Service) RunDueDepreciation(ctx context.Context, businessID int64, asOf time.Time) (DueResult, error) {
	if businessID <= 0 {
		return DueResult{}, shared.Invalid("business_id is required")
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = journals.DateOnly(asOf)
	due, err := s.repo.DueSchedules(ctx, businessID, asOf)
	if err != nil {
		return DueResult{}, err
	}
	out := DueResult{AsOf: asOf, Posted: []RunResult{}}
	for _, row := range due {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		result, err := s.RunDepreciation(ctx, row.ID)
		switch {
		case errors.Is(err, shared.ErrDepreciationPosted):
			continue
		case err != nil:
			s.logger.Warn("depreciation run failed", slog.Int64("schedule_id", row.ID), slog.Any("error", err))
			out.Failed = append(out.Failed, RunFailure{ScheduleID: row.ID, AssetID: row.AssetID, Error: err.Error()})
		default:
			out.Posted = append(out.Posted, result)
		}
	}
	s.logger.Info("due depreciation run", slog.Int64("business_id", businessID),
		slog.Int("posted", len(out.Posted)), slog.Int("failed", len(out.Failed)))
	return out, nil
}
