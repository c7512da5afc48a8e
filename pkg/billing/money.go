package billing

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
)

// NormalizeCurrency returns the upper-case ISO 4217 code for code.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if u, err := currency.ParseISO(code); err == nil {
		return u.String()
	}
	return code
}

// MajorUnits converts an amount in minor units to major units using the
// currency's standard scale (2 when the currency is unknown).
func MajorUnits(amount int64, code string) float64 {
	scale := 2
	if u, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code))); err == nil {
		scale, _ = currency.Standard.Rounding(u)
	}
	return float64(amount) / math.Pow10(scale)
}
