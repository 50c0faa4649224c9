// Package textnorm folds user-typed Spanish text for matching: lower case,
// no accents, collapsed whitespace.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and collapses runs of whitespace.
// Punctuation other than '$' is replaced by spaces.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '$':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Terms returns the folded, space-separated terms of s.
func Terms(s string) []string {
	folded := Fold(s)
	if folded == "" {
		return nil
	}
	return strings.Fields(folded)
}

// ContainsAll reports whether every term is a substring of the folded haystack.
func ContainsAll(haystack string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	folded := Fold(haystack)
	for _, term := range terms {
		if !strings.Contains(folded, term) {
			return false
		}
	}
	return true
}
