package comparison

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// mlPerUnit converts a normalized unit token to milliliters.
var mlPerUnit = map[string]float64{
	"ml": 1, "milliliter": 1, "millilitre": 1, "milliliters": 1, "millilitres": 1,
	"cl": 10, "centiliter": 10, "centilitre": 10, "centiliters": 10, "centilitres": 10,
	"l": 1000, "liter": 1000, "litre": 1000, "liters": 1000, "litres": 1000,
	"fl oz": 29.5735, "fl. oz.": 29.5735, "fl. oz": 29.5735, "fl oz.": 29.5735,
	"fluid ounce": 29.5735, "fluid ounces": 29.5735, "oz": 29.5735,
	"gal": 3785.41, "gallon": 3785.41, "gallons": 3785.41,
	"pt": 473.176, "pint": 473.176, "pints": 473.176,
	"qt": 946.353, "quart": 946.353, "quarts": 946.353,
}

var (
	reABV         = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	reNetContents = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*` +
		`(ml|milliliters?|millilitres?|cl|centiliters?|centilitres?|` +
		`l|liters?|litres?|fl\.?\s*oz\.?|fluid\s+ounces?|oz\.?|` +
		`gal(?:lons?)?|pt|pints?|qt|quarts?)`)
)

// ParseABV extracts the first percentage number, e.g. 45 from "45% Alc./Vol.".
func ParseABV(s string) (float64, bool) {
	m := reABV.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseNetContentsML extracts the first volume expression and converts it to
// milliliters, rounded to two decimals.
func ParseNetContentsML(s string) (float64, bool) {
	m := reNetContents.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := strings.TrimRight(strings.TrimSpace(strings.ToLower(m[2])), ".")
	unit = reSpaces.ReplaceAllString(unit, " ")
	factor, ok := mlPerUnit[unit]
	if !ok {
		factor, ok = mlPerUnit[strings.TrimRight(unit, "s")]
	}
	if !ok {
		return 0, false
	}
	return math.Round(v*factor*100) / 100, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
