package catalog

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var priceDigits = regexp.MustCompile(`[\d,]+`)

// ParsePrice extracts the first run of digits (with thousands separators) from
// a currency-formatted string. "79,800円" yields 79800. Full-width digits and
// commas are folded to ASCII first. It returns nil when the text holds no digits.
func ParsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	text = width.Narrow.String(text)
	for _, run := range priceDigits.FindAllString(text, -1) {
		digits := strings.ReplaceAll(run, ",", "")
		if digits == "" {
			continue
		}
		v, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return nil
		}
		return &v
	}
	return nil
}
