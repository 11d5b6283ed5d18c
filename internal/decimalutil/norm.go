// Package decimalutil holds fixed-point helpers shared by order-size math
// across the trade execution layer.
package decimalutil

import (
	"strings"

	"github.com/shopspring/decimal"
)

// roundPlaces matches the precision used throughout the original price/amount
// math: eight decimal places, the common crypto asset precision.
const roundPlaces = 8

// Norm renders d rounded to eight decimal places with trailing zeros (and a
// trailing decimal point) stripped, e.g. Norm(5.00) == "5",
// Norm(2.4e-10) == "0".
func Norm(d decimal.Decimal) string {
	s := d.Round(roundPlaces).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	switch s {
	case "", "-", "-0":
		return "0"
	default:
		return s
	}
}
