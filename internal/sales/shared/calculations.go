package shared

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ClampPercent bounds a percentage to [0, 100].
func ClampPercent(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// NonNegative returns zero for negative amounts.
func NonNegative(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// ApplyDiscount returns amount reduced by pct percent. The percentage is clamped first.
func ApplyDiscount(amount decimal.Decimal, pct float64) decimal.Decimal {
	factor := hundred.Sub(decimal.NewFromFloat(ClampPercent(pct))).Div(hundred)
	return NonNegative(amount).Mul(factor)
}

// Percentage returns part/whole*100, or zero when whole is zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
