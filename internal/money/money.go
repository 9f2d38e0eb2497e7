// Package money holds the decimal conventions shared by every ledger component.
package money

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MinorUnits is the number of decimal places kept for currency amounts.
const MinorUnits int32 = 2

// FinePlaces is the precision kept for quantities and percentages.
const FinePlaces int32 = 3

var hundred = decimal.NewFromInt(100)

// Round rounds to minor-unit precision, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnits)
}

// Percent returns base × pct / 100 rounded to minor units.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(pct).Div(hundred))
}

// FitsPlaces reports whether d is exact at the given number of decimal
// places, i.e. storing it at that scale loses nothing.
func FitsPlaces(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Hundred exposes the constant 100 for percentage bounds checks.
func Hundred() decimal.Decimal {
	return hundred
}

// Parse reads a plain decimal string such as "2500" or "12.50".
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", raw, err)
	}
	return d, nil
}

// Format renders an amount with grouping separators and two decimals,
// prefixed by the currency code when one is given. Digits come from the
// decimal itself, never from a float.
func Format(currency string, d decimal.Decimal) string {
	fixed := Round(d).StringFixed(MinorUnits)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	out := sign + group(whole) + "." + frac
	if currency == "" {
		return out
	}
	return currency + " " + out
}

func group(whole string) string {
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		return message.NewPrinter(language.English).Sprintf("%d", n)
	}
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Sum adds the amounts together.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
