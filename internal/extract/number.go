package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// numPat captures a decimal with optional sign. Comma-grouped thousands
	// in the en-US form ("1,520.00") are accepted; the pt-BR form
	// ("1.520,00") is not and parses as 1.52.
	numPat = `(-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?)`

	// currencyPat matches a currency marker such as "r$", "us$" or "$".
	currencyPat = `(?:r|us)?\$\s*`

	// moneyPat is numPat with an optional currency marker in front.
	moneyPat = `(?:` + currencyPat + `)?` + numPat

	// sepPat sits between a label and its value: optional markdown emphasis,
	// an optional parenthetical that is not a currency hint, then ':', '-' or '='.
	sepPat = `[*_\s]*(?:\([^)$\n]*\))?[*_\s]*[:\-=][*_\s]*`

	datePat = `(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})`
)

// labeled builds `\b(label)<sep><value>`; value must contain one capture group.
func labeled(label, value string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:` + label + `)` + sepPat + value)
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
