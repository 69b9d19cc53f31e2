package calc

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Locale used for grouping and decimal separators on the display.
var Locale = language.Italian

// FormatNumber renders v with the given number of decimals using Locale
// separators. Negative decimals keep every significant digit.
func FormatNumber(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if decimals < 0 {
		decimals = fractionDigits(strconv.FormatFloat(v, 'f', -1, 64))
	}
	p := message.NewPrinter(Locale)
	return p.Sprint(number.Decimal(v, number.Scale(decimals)))
}

// FormatDisplay localizes a display string. Text that is not a complete
// number, such as "Error", "12%" or "3." while typing, is returned as is.
func FormatDisplay(display string) string {
	if strings.HasSuffix(display, ".") {
		return display
	}
	v, err := strconv.ParseFloat(display, 64)
	if err != nil {
		return display
	}
	return FormatNumber(v, fractionDigits(display))
}

// FormatEntry renders a tape line with the digits it was printed with.
func FormatEntry(e Entry) string {
	return FormatNumber(e.Value, fractionDigits(e.Text))
}

func fractionDigits(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}
