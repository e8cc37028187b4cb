// Package extract turns free-form analysis text produced by a language model
// into structured trading metrics and categorized recommendation lists.
//
// Extraction is best effort and total: every exported function returns a
// fully populated value for any input, including the empty string, and is a
// pure function of its input.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// Decompose, drop combining marks, recompose: "métricas" -> "metricas".
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	dashes = strings.NewReplacer(
		"‐", "-", // hyphen
		"‑", "-", // non-breaking hyphen
		"‒", "-", // figure dash
		"–", "-", // en dash
		"—", "-", // em dash
		"−", "-", // minus sign
	)

	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
)

// Normalize folds text for pattern matching: diacritics removed, dash variants
// unified, runs of horizontal whitespace collapsed, each line trimmed, and
// everything lower-cased. Line structure is preserved, so line i of the
// result corresponds to line i of the input.
func Normalize(s string) string {
	lines := splitLines(s)
	for i, l := range lines {
		lines[i] = normalizeLine(l)
	}
	return strings.Join(lines, "\n")
}

func normalizeLine(l string) string {
	out, _, err := transform.String(stripMarks, l)
	if err != nil {
		out = l
	}
	out = dashes.Replace(out)
	out = horizontalSpace.ReplaceAllString(out, " ")
	return strings.ToLower(strings.TrimSpace(out))
}

// splitLines splits on \n after folding \r\n and lone \r.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
