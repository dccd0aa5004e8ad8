// Package valueobject holds the monetary arithmetic shared by tariff and billing.
// All amounts are shopspring decimals; floating point never touches money.
package valueobject

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places stored for monetary amounts
const MoneyPlaces int32 = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds to two decimal places, half away from zero (2.345 -> 2.35, -2.345 -> -2.35).
// Stored bill amounts are always produced by this function so that a
// recalculation reproduces them exactly.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// NonNegative clamps d at zero
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// PercentOf returns base * ratePercent / 100 without rounding
func PercentOf(base, ratePercent decimal.Decimal) decimal.Decimal {
	return base.Mul(ratePercent).Div(hundred)
}

// Sum adds all values
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MinDecimal returns the smaller of a and b
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
