package rates

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Conversion is the outcome of converting an amount at a given rate.
type Conversion struct {
	Amount decimal.Decimal
	Source string
	Target string
	Rate   decimal.Decimal
	Result decimal.Decimal
}

// Convert multiplies amount by rate without floating-point rounding.
func Convert(amount decimal.Decimal, source, target string, rate decimal.Decimal) Conversion {
	return Conversion{
		Amount: amount,
		Source: source,
		Target: target,
		Rate:   rate,
		Result: amount.Mul(rate),
	}
}

var printer = message.NewPrinter(language.English)

// groupLimit bounds the integer part printed with separators.
var groupLimit = decimal.New(1, 18)

// FormatMoney renders d with two decimals and thousands separators.
func FormatMoney(d decimal.Decimal) string {
	r := d.Round(2)
	whole, frac, _ := strings.Cut(r.Abs().StringFixed(2), ".")
	if intPart := r.Abs().Truncate(0); intPart.LessThan(groupLimit) {
		whole = printer.Sprintf("%d", intPart.IntPart())
	}
	if r.Sign() < 0 {
		whole = "-" + whole
	}
	return whole + "." + frac
}

// FormatRate renders a rate with four decimals.
func FormatRate(d decimal.Decimal) string {
	return d.StringFixed(4)
}
