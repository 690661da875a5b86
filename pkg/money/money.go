// Package money converts between decimal amounts and the integer cents stored in the database.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FromCents renders stored cents as a two-place decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents rounds half away from zero to the nearest cent.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// Format prints the amount the way receipts show it, e.g. "R$ 45.80".
func Format(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}

func FormatCents(cents int64) string {
	return Format(FromCents(cents))
}
