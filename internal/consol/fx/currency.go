package fx

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const defaultScale = 2

// Currency carries the rounding precision of an ISO 4217 currency.
type Currency struct {
	Code  string
	Scale int32
}

// CurrencyOf resolves the minor unit scale for code, falling back to two decimals for unknown codes.
func CurrencyOf(code string) Currency {
	code = NormalizeCode(code)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Currency{Code: code, Scale: defaultScale}
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{Code: code, Scale: int32(scale)}
}

// Round rounds amount half away from zero to the currency precision.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.Scale)
}

// IsZero reports whether amount is zero once rounded to the currency precision.
func (c Currency) IsZero(amount decimal.Decimal) bool {
	return c.Round(amount).IsZero()
}

// NormalizeCode upper-cases and trims a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Pair builds the quote key for converting from into to.
func Pair(from, to string) string {
	return NormalizeCode(from) + NormalizeCode(to)
}
