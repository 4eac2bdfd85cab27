package ledger

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	quantityPattern      = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Zμµ\x{4e00}-\x{9fa5}]+)`)
	leadingNumberPattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)`)
)

// ParseQuantity splits a human-entered quantity string such as "100g",
// "50 ml", "2.5kg" or "10瓶" into its numeric value and unit symbol. Both
// parts are required; use ParseBaseline when only the number matters.
func ParseQuantity(text string) (float64, string, error) {
	trimmed := strings.TrimSpace(text)
	match := quantityPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return 0, "", &MalformedQuantityTextError{Text: text}
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, "", &MalformedQuantityTextError{Text: text}
	}

	return round(value), match[2], nil
}

// ParseBaseline extracts the leading numeric run of a quantity string,
// tolerating a missing or unparseable unit. It backs the stock-percentage
// classification, where a number alone is enough of a baseline.
func ParseBaseline(text string) (float64, bool) {
	match := leadingNumberPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
