package snapshot

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/agencyhub/agencyhub/internal/catalog"
	"github.com/agencyhub/agencyhub/internal/formula"
)

// Formatter renders metric values for exports.
type Formatter struct {
	printer  *message.Printer
	currency string
}

// NewFormatter builds a Formatter for a BCP 47 locale; unknown locales fall back to English.
func NewFormatter(locale, currency string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	if currency == "" {
		currency = "USD"
	}
	return &Formatter{printer: message.NewPrinter(tag), currency: currency}
}

// Format renders v according to format. Missing values render as "-".
func (f *Formatter) Format(format catalog.DisplayFormat, v any) string {
	n, ok := formula.ToFloat(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return "-"
	}
	if f == nil {
		f = NewFormatter("en", "")
	}
	switch format {
	case catalog.FormatPercent:
		return f.printer.Sprintf("%.2f%%", n*100)
	case catalog.FormatCurrency:
		return f.printer.Sprintf("%s %.2f", f.currency, n)
	case catalog.FormatDecimal:
		return f.printer.Sprintf("%.2f", n)
	case catalog.FormatDuration:
		return (time.Duration(n * float64(time.Second))).Round(time.Second).String()
	default:
		return f.printer.Sprintf("%d", int64(math.Round(n)))
	}
}
