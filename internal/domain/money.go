package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the precision amounts are stored and compared at.
const MoneyPlaces = 2

type currencyInfo struct {
	Symbol string
	Suffix bool
}

var currencies = map[string]currencyInfo{
	"ILS": {Symbol: "₪"},
	"USD": {Symbol: "$"},
	"EUR": {Symbol: "€"},
	"GBP": {Symbol: "£"},
	"JPY": {Symbol: "¥"},
	"CHF": {Symbol: "CHF", Suffix: true},
	"CAD": {Symbol: "C$"},
	"AUD": {Symbol: "A$"},
	"PLN": {Symbol: "zł", Suffix: true},
	"SEK": {Symbol: "kr", Suffix: true},
	"NOK": {Symbol: "kr", Suffix: true},
	"DKK": {Symbol: "kr", Suffix: true},
	"RUB": {Symbol: "₽", Suffix: true},
	"KZT": {Symbol: "₸", Suffix: true},
	"INR": {Symbol: "₹"},
}

// ValidCurrency accepts any three-letter upper-case code; the symbol table
// only affects formatting.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CurrencySymbol falls back to the code itself for unknown currencies.
func CurrencySymbol(code string) string {
	if c, ok := currencies[code]; ok {
		return c.Symbol
	}
	return code
}

// FormatMoney renders amount with thousands separators and the currency symbol.
func FormatMoney(amount decimal.Decimal, code string) string {
	s := amount.StringFixed(MoneyPlaces)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	num := b.String() + "." + frac
	if neg {
		num = "-" + num
	}

	c, ok := currencies[code]
	if !ok {
		return num + " " + code
	}
	if c.Suffix {
		return num + " " + c.Symbol
	}
	return c.Symbol + num
}

// ValidAmount reports whether amount is positive and representable in
// minor units.
func ValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	return amount.Equal(amount.Round(MoneyPlaces))
}
