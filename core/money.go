package core

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places amounts are kept at.
const MoneyPlaces = 2

// RoundMoney rounds `d` half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Money parses `s` into a rounded decimal.Decimal. It panics on malformed input; use in tests and constants only.
func Money(s string) decimal.Decimal {
	return RoundMoney(decimal.RequireFromString(s))
}

// MaxZero returns `d` or zero, whichever is greater.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// MinMoney returns the smaller of `a` and `b`.
func MinMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func init() {
	// amounts are plain JSON numbers on the wire
	decimal.MarshalJSONWithoutQuotes = true
}
