package mappings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository resolves business finance settings.
type Repository interface {
	Get(ctx context.Context, businessID int64) (BusinessFinanceSettings, error)
	Save(ctx context.Context, settings BusinessFinanceSettings) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed settings repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get returns the settings row; a missing row yields empty settings so that
// posting rules report the precise missing key.
func (r *repository) Get(ctx context.Context, businessID int64) (BusinessFinanceSettings, error) {
	settings := BusinessFinanceSettings{BusinessID: businessID}
	err := r.db.QueryRow(ctx, `SELECT receivable_account_id, payable_account_id, cash_account_id
FROM business_finance_settings WHERE business_id = $1`, businessID).
		Scan(&settings.ReceivableAccountID, &settings.PayableAccountID, &settings.CashAccountID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return BusinessFinanceSettings{}, err
	}
	return settings, nil
}

func (r *repository) Save(ctx context.Context, settings BusinessFinanceSettings) error {
	_, err := r.db.Exec(ctx, `INSERT INTO business_finance_settings (business_id, receivable_account_id, payable_account_id, cash_account_id)
VALUES ($1,$2,$3,$4)
ON CONFLICT (business_id) DO UPDATE SET receivable_account_id = EXCLUDED.receivable_account_id,
	payable_account_id = EXCLUDED.payable_account_id, cash_account_id = EXCLUDED.cash_account_id, updated_at = NOW()`,
		settings.BusinessID, settings.ReceivableAccountID, settings.PayableAccountID, settings.CashAccountID)
	return err
}

// Static serves fixed settings, used by tests and single-tenant setups.
type Static map[int64]BusinessFinanceSettings

// Get implements Repository.
func (s Static) Get(_ context.Context, businessID int64) (BusinessFinanceSettings, error) {
	settings, ok := s[businessID]
	if !ok {
		return BusinessFinanceSettings{BusinessID: businessID}, nil
	}
	settings.BusinessID = businessID
	return settings, nil
}

// Save implements Repository.
func (s Static) Save(_ context.Context, settings BusinessFinanceSettings) error {
	s[settings.BusinessID] = settings
	return nil
}
