// Package transcript turns raw recognizer text into the canonical form used
// for intent matching and cast arbitration.
//
// Two transforms are provided:
//
//   - [RecoverEncoding] repairs text whose bytes were tagged with the wrong
//     legacy code page by an upstream recognizer build.
//   - [Normalize] lower-cases text and collapses punctuation and whitespace so
//     that "Молния!" and "  молния " compare equal.
//
// Both functions are pure and safe for concurrent use.
package transcript

import (
	"strings"
	"unicode"
)

// Normalize lower-cases raw, folds 'ё' into 'е', collapses every run of
// characters that are neither letters nor digits into a single space and trims
// the result. Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))

	// pendingSpace defers the separator until the next kept rune so that
	// leading and trailing runs never reach the output.
	pendingSpace := false
	for _, r := range raw {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		r = unicode.ToLower(r)
		if r == 'ё' {
			r = 'е'
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tokens splits an already normalized string into its space-separated words.
// It returns nil for the empty string.
func Tokens(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, " ")
}
