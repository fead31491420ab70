package learning

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deaccent decomposes and strips combining marks, so "résiliation" becomes
// "resiliation".
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// minTermLength filters out articles and short connective words.
const minTermLength = 5

// Tokenize splits a question into normalized query-expansion terms:
// lowercased, diacritics stripped, at least minTermLength runes, first
// occurrence wins.
func Tokenize(question string) []string {
	stripped, _, err := transform.String(deaccent, question)
	if err != nil {
		stripped = question
	}
	stripped = strings.ToLower(stripped)

	fields := strings.FieldsFunc(stripped, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len([]rune(f)) < minTermLength || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
