package ledger

import "strings"

// Mass conversion factors relative to grams. Mass is the only dimension with
// cross-unit conversion; every other unit (volume, 瓶, 盒, ...) is accepted
// verbatim but convertible only to itself.
var massFactors = map[string]float64{
	"g":  1,
	"kg": 1000,
	"mg": 0.001,
	"μg": 0.000001,
}

var unitAliases = map[string]string{
	"ug":  "μg",
	"mcg": "μg",
	"µg":  "μg",
}

// NormalizeUnit canonicalizes a unit symbol: trims, lowercases ASCII, and
// folds the micro-sign spellings into μg. Unknown symbols pass through
// unchanged so count-style units keep their original form.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if canonical, ok := unitAliases[u]; ok {
		return canonical
	}
	return u
}

// Normalize converts amount from one unit into another. Mass units convert
// through grams; any other pair is valid only when both symbols canonicalize
// to the same unit, in which case the amount passes through untouched.
func Normalize(amount float64, fromUnit, toUnit string) (float64, error) {
	from := NormalizeUnit(fromUnit)
	to := NormalizeUnit(toUnit)

	if from == to {
		return amount, nil
	}

	fromFactor, fromOK := massFactors[from]
	toFactor, toOK := massFactors[to]
	if !fromOK || !toOK {
		return 0, &UnsupportedUnitError{From: fromUnit, To: toUnit}
	}

	return round(amount * fromFactor / toFactor), nil
}

// ConvertibleUnits lists the unit symbols that participate in cross-unit
// conversion, for error messages and the import template.
func ConvertibleUnits() []string {
	return []string{"g", "kg", "mg", "μg"}
}
