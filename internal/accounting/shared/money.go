package shared

import "github.com/shopspring/decimal"

// EntryType is the side of a journal line. It doubles as an account's normal balance.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// Valid reports whether t is DEBIT or CREDIT.
func (t EntryType) Valid() bool {
	return t == Debit || t == Credit
}

// Opposite returns the other side.
func (t EntryType) Opposite() EntryType {
	if t == Debit {
		return Credit
	}
	return Debit
}

// Tolerance is the rounding slack accepted when comparing money totals.
var Tolerance = decimal.New(1, -2)

// Round2 rounds to cents.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// Balanced reports whether two totals agree within Tolerance.
func Balanced(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Settled reports whether paid matches total strictly inside Tolerance.
func Settled(paid, total decimal.Decimal) bool {
	return paid.Sub(total).Abs().LessThan(Tolerance)
}

// Exceeds reports whether v is more than Tolerance above limit.
func Exceeds(v, limit decimal.Decimal) bool {
	return v.Sub(limit).GreaterThan(Tolerance)
}

// SignedBalance applies the normal-balance convention to raw totals.
func SignedBalance(normal EntryType, debit, credit decimal.Decimal) decimal.Decimal {
	if normal == Credit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}
