package assets

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// monthEnd returns the last day of the month offset months after t's month.
func monthEnd(t time.Time, offset int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(offset)+1, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 0, -1)
}

// GenerateSchedule splits cost less salvage evenly over the useful life. Rows
// are dated at month-end starting with the month of the start date. The last
// row takes the rounding residual so the rows sum to the depreciable amount;
// no row ever pushes accumulated depreciation past it.
func GenerateSchedule(asset Asset, setting Setting) ([]ScheduleRow, error) {
	if err := validateSetting(asset, setting); err != nil {
		return nil, err
	}
	depreciable := shared.Round2(asset.AcquisitionCost.Sub(setting.SalvageValue))
	life := setting.UsefulLifeMonths
	monthly := shared.Round2(depreciable.Div(decimal.NewFromInt(int64(life))))

	rows := make([]ScheduleRow, life)
	accumulated := decimal.Zero
	for i := range rows {
		amount := monthly
		remaining := depreciable.Sub(accumulated)
		if i == life-1 || amount.GreaterThan(remaining) {
			amount = remaining
		}
		accumulated = accumulated.Add(amount)
		rows[i] = ScheduleRow{
			AssetID:     asset.ID,
			PeriodNo:    i + 1,
			Date:        monthEnd(setting.StartDate, i),
			Amount:      amount,
			Accumulated: accumulated,
			BookValue:   asset.AcquisitionCost.Sub(accumulated),
			Status:      StatusPending,
		}
	}
	return rows, nil
}

func validateSetting(asset Asset, setting Setting) error {
	if setting.UsefulLifeMonths <= 0 {
		return shared.Invalid("useful life must be at least one month")
	}
	if setting.StartDate.IsZero() {
		return shared.Invalid("depreciation start date required")
	}
	if setting.SalvageValue.IsNegative() {
		return shared.Invalid("salvage value cannot be negative")
	}
	if setting.SalvageValue.GreaterThan(asset.AcquisitionCost) {
		return shared.Invalid("salvage value %s exceeds acquisition cost %s",
			setting.SalvageValue.StringFixed(2), asset.AcquisitionCost.StringFixed(2))
	}
	if setting.ExpenseAccountID <= 0 || setting.AccumulatedAccountID <= 0 {
		return shared.Invalid("expense and accumulated depreciation accounts are required")
	}
	if setting.ExpenseAccountID == setting.AccumulatedAccountID {
		return shared.Invalid("expense and accumulated depreciation accounts must differ")
	}
	return nil
}
