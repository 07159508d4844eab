// Package money converts between the integer minor-unit amounts stored
// everywhere in this service and the decimal strings the API renders.
package money

import "github.com/shopspring/decimal"

// Format renders cents as a fixed two-decimal string, e.g. 1990 -> "19.90".
func Format(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ApplyCoupon returns the subtotal after a percent-off or amount-off
// discount, never below zero. Percent discounts round half-up to the cent.
func ApplyCoupon(subtotal int64, percentOff float64, amountOff int64) int64 {
	total := subtotal
	if percentOff > 0 {
		d := decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromFloat(percentOff)).
			Div(decimal.NewFromInt(100)).
			Round(0)
		total -= d.IntPart()
	}
	if amountOff > 0 {
		total -= amountOff
	}
	if total < 0 {
		total = 0
	}
	return total
}
