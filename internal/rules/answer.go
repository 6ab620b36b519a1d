// Package rules holds the pure grading, unlock and answer-comparison rules
// shared by lesson and scene submissions.
package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeAnswer canonicalizes a free-text answer for comparison: trims,
// collapses internal whitespace runs to one space and case-folds.
// Whitespace-only input yields "".
func NormalizeAnswer(raw string) string {
	fields := strings.FieldsFunc(norm.NFC.String(raw), unicode.IsSpace)
	if len(fields) == 0 {
		return ""
	}
	return cases.Fold().String(strings.Join(fields, " "))
}

// AnswersEqual reports whether two answers have identical normalized forms.
func AnswersEqual(a, b string) bool {
	return NormalizeAnswer(a) == NormalizeAnswer(b)
}

// MatchesAny reports whether answer equals any of the accepted answers.
func MatchesAny(answer string, accepted ...string) bool {
	got := NormalizeAnswer(answer)
	for _, a := range accepted {
		if want := NormalizeAnswer(a); want != "" && want == got {
			return true
		}
	}
	return false
}
