package common

import (
	"github.com/govalues/decimal"
)

func pow10(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}

// ParseDecimal converts a decimal literal to scaled integer units: the
// fractional part is truncated or zero-padded to scale digits and
// concatenated with the whole part.
func ParseDecimal(scale int, text string) (int64, error) {
	d, err := decimal.Parse(text)
	if err != nil {
		return 0, Parsef("invalid Decimal literal: %s", text)
	}
	whole, frac, ok := d.Trunc(scale).Int64(scale)
	if !ok {
		return 0, Parsef("Decimal literal out of range: %s", text)
	}
	return whole*pow10(scale) + frac, nil
}

func FormatDecimal(scale int, units int64) string {
	d, err := decimal.New(units, scale)
	if err != nil {
		panic(err)
	}
	return d.String()
}
