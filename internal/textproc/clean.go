// Package textproc prepares final transcript text for the composer: it
// normalizes whitespace, filters out noise-length results, and applies
// user-defined substitution rules.
package textproc

import "strings"

// DefaultMinFinalChars is the cleaned-length floor below which a final
// transcript is treated as "no meaningful speech detected".
const DefaultMinFinalChars = 5

// Clean trims leading/trailing whitespace and collapses internal whitespace
// runs to single spaces.
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Meaningful reports whether cleaned text is long enough to commit to the
// composer. minChars <= 0 selects DefaultMinFinalChars.
func Meaningful(cleaned string, minChars int) bool {
	if minChars <= 0 {
		minChars = DefaultMinFinalChars
	}
	return len([]rune(cleaned)) >= minChars
}
