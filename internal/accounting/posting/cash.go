package posting

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Direction of a cash movement.
type Direction string

const (
	Inbound  Direction = "IN"
	Outbound Direction = "OUT"
)

// CashMovement posts counter lines and derives the cash leg that balances them.
// Counter lines without an entry type default to CREDIT for inbound and DEBIT for outbound.
type CashMovement struct {
	BusinessID    int64
	Direction     Direction
	Date          time.Time
	Description   string
	Reference     string
	CreatedBy     int64
	CashAccountID int64
	Lines         []journals.LineInput
	Ref           uuid.UUID
}

func (CashMovement) rule() {}

// Derive implements Rule.
func (r CashMovement) Derive() (journals.EntryInput, error) {
	if r.Direction != Inbound && r.Direction != Outbound {
		return journals.EntryInput{}, shared.Invalid("direction must be IN or OUT")
	}
	if len(r.Lines) == 0 {
		return journals.EntryInput{}, shared.Invalid("at least one counter line required")
	}
	defaultSide, cashSide := shared.Credit, shared.Debit
	if r.Direction == Outbound {
		defaultSide, cashSide = shared.Debit, shared.Credit
	}
	counters := make([]journals.LineInput, len(r.Lines))
	var debit, credit decimal.Decimal
	for i, line := range r.Lines {
		if line.AccountID == r.CashAccountID {
			return journals.EntryInput{}, shared.Invalid("line %d uses the cash account", i)
		}
		line.EntryType = shared.EntryType(strings.ToUpper(strings.TrimSpace(string(line.EntryType))))
		if line.EntryType == "" {
			line.EntryType = defaultSide
		}
		line.Amount = shared.Round2(line.Amount)
		switch line.EntryType {
		case shared.Debit:
			debit = debit.Add(line.Amount)
		case shared.Credit:
			credit = credit.Add(line.Amount)
		default:
			return journals.EntryInput{}, shared.Invalid("line %d has unknown entry type %q", i, line.EntryType)
		}
		counters[i] = line
	}
	cash := credit.Sub(debit)
	if r.Direction == Outbound {
		cash = debit.Sub(credit)
	}
	if !cash.IsPositive() {
		return journals.EntryInput{}, shared.Invalid("derived cash amount %s must be positive", cash.StringFixed(2))
	}
	in := journals.EntryInput{
		BusinessID:  r.BusinessID,
		Date:        r.Date,
		Description: r.Description,
		Reference:   r.Reference,
		CreatedBy:   r.CreatedBy,
		Lines:       append([]journals.LineInput{{AccountID: r.CashAccountID, EntryType: cashSide, Amount: cash}}, counters...),
	}
	if in.Description == "" {
		label := "Cash receipt"
		if r.Direction == Outbound {
			label = "Cash disbursement"
		}
		in.Description = label + " " + FormatAmount(cash)
	}
	if r.Ref != uuid.Nil {
		in.SourceModule = ModuleCash
		in.SourceID = r.Ref
	}
	return in, nil
}
