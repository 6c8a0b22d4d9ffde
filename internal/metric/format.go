package metric

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Organization-level locale selection is a caller concern; the engine renders
// with a fixed locale and callers re-render dates/currency symbols as needed.
var printer = message.NewPrinter(language.English)

// formatCount renders a locale-grouped integer, e.g. 1234 -> "1,234"
func formatCount(n float64) string {
	return printer.Sprint(number.Decimal(int64(math.Round(n))))
}

// formatSum renders a grouped number, prefixed with a currency symbol when
// the metric's numerator field carries currency semantics.
func formatSum(n float64, currency string) string {
	if currency == "" {
		if n == math.Trunc(n) {
			return formatCount(n)
		}
		return printer.Sprint(number.Decimal(n, number.MaxFractionDigits(2)))
	}
	return symbolFor(currency) + printer.Sprint(number.Decimal(n, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// formatPercent renders a rounded whole percentage with a trailing %
func formatPercent(p float64) string {
	return fmt.Sprintf("%d%%", int64(math.Round(p)))
}

func symbolFor(currency string) string {
	switch currency {
	case "USD", "usd":
		return "$"
	case "EUR", "eur":
		return "€"
	case "GBP", "gbp":
		return "£"
	default:
		return currency + " "
	}
}
