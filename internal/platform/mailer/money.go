package mailer

import (
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MoneyFormatter renders minor-unit amounts for a locale.
type MoneyFormatter struct {
	tag     language.Tag
	unit    currency.Unit
	divisor float64
	printer *message.Printer
}

// NewMoneyFormatter parses locale (BCP 47, falling back to English) and the ISO currency code
// (falling back to NPR).
func NewMoneyFormatter(locale, code string) MoneyFormatter {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		tag = language.English
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.MustParseISO("NPR")
	}
	scale, _ := currency.Standard.Rounding(unit)
	return MoneyFormatter{
		tag:     tag,
		unit:    unit,
		divisor: math.Pow10(scale),
		printer: message.NewPrinter(tag),
	}
}

// Tag returns the resolved locale.
func (f MoneyFormatter) Tag() language.Tag { return f.tag }

// Format renders minor as a localized currency string, e.g. 236000 NPR → "NPR 2360.00".
func (f MoneyFormatter) Format(minor int64) string {
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(float64(minor) / f.divisor)))
}
