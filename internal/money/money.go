// Package money holds the decimal arithmetic used for reporting amounts.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Of converts a ledger amount to a decimal.
func Of(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Abs returns |v| as a decimal.
func Abs(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Abs()
}

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Round2f rounds a float amount half away from zero to cents.
func Round2f(v float64) float64 {
	return Round2(decimal.NewFromFloat(v))
}

// Percent returns part/whole*100. A zero whole yields zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole)
}

// ApplyRate returns amount*rate/100.
func ApplyRate(amount decimal.Decimal, rate float64) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(rate)).Div(hundred)
}

// Sum adds the given decimals.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
