// Package vocab extracts candidate vocabulary keys from lesson and scene
// content. Extraction is advisory: it never fails and performs no I/O.
package vocab

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

// MaxPhraseWords is the longest n-gram emitted from free text.
const MaxPhraseWords = 3

// Set is a case-insensitive, deduplicated collection of keys that remembers
// first-seen order.
type Set struct {
	seen  map[string]struct{}
	items []string
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add inserts keys, lower-cased, skipping blanks and duplicates.
func (s *Set) Add(keys ...string) {
	for _, k := range keys {
		k = lower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := s.seen[k]; ok {
			continue
		}
		s.seen[k] = struct{}{}
		s.items = append(s.items, k)
	}
}

// Contains reports whether key is in the set.
func (s *Set) Contains(key string) bool {
	_, ok := s.seen[lower(strings.TrimSpace(key))]
	return ok
}

// Items returns the keys in first-seen order.
func (s *Set) Items() []string {
	return append([]string(nil), s.items...)
}

// Len returns the number of keys.
func (s *Set) Len() int { return len(s.items) }

// FromText tokenizes free text and returns every unigram plus every
// contiguous bigram and trigram of the token sequence.
func FromText(text string) []string {
	tokens := Tokenize(text)
	set := NewSet()
	for n := 1; n <= MaxPhraseWords; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			set.Add(strings.Join(tokens[i:i+n], " "))
		}
	}
	return set.Items()
}

// Tokenize composes text to NFC, splits on everything that is not a letter,
// a combining mark or an internal apostrophe, lower-cases tokens and drops
// tokens of one rune or less.
func Tokenize(text string) []string {
	raw := strings.FieldsFunc(norm.NFC.String(text), func(r rune) bool {
		return !isWordRune(r)
	})

	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.TrimFunc(tok, isApostrophe)
		if utf8.RuneCountInString(tok) <= 1 {
			continue
		}
		tokens = append(tokens, lower(tok))
	}
	return tokens
}

// FromStepPayload returns the normalized correct answers of a choice or
// input step. Malformed payloads yield nothing.
func FromStepPayload(stepType content.StepType, raw []byte) []string {
	if stepType != content.StepChoice && stepType != content.StepInput {
		return nil
	}
	p, err := content.ParseStepPayload(stepType, raw)
	if err != nil {
		// Extraction is best-effort; a bad payload must not fail the caller.
		slog.Debug("skipping step payload", "step_type", stepType, "error", err)
		return nil
	}

	set := NewSet()
	for _, a := range p.Accepted() {
		set.Add(NormalizePhrase(a))
	}
	return set.Items()
}

// FromTheoryList reads theory written as a flat delimited list. Text
// containing "=" is structured "word = translation" content and yields
// nothing here.
func FromTheoryList(text string) []string {
	if strings.Contains(text, "=") {
		return nil
	}
	parts := strings.FieldsFunc(norm.NFC.String(text), func(r rune) bool {
		switch r {
		case '\n', '\r', ',', ';', '|', '\t':
			return true
		}
		return false
	})

	set := NewSet()
	for _, p := range parts {
		set.Add(NormalizePhrase(p))
	}
	return set.Items()
}

// NormalizePhrase composes to NFC, trims edge punctuation, collapses
// internal whitespace and lower-cases.
func NormalizePhrase(s string) string {
	s = strings.TrimFunc(norm.NFC.String(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return lower(strings.Join(strings.Fields(s), " "))
}

// FromLesson extracts candidates from a lesson's theory text.
func FromLesson(l content.Lesson) []string {
	set := NewSet()
	set.Add(FromText(l.Theory)...)
	set.Add(FromTheoryList(l.Theory)...)
	return set.Items()
}

// FromSceneStep extracts candidates from a step's line and payload.
func FromSceneStep(s content.SceneStep) []string {
	set := NewSet()
	set.Add(FromText(s.Text)...)
	set.Add(FromStepPayload(s.Type, s.Payload)...)
	return set.Items()
}

// Extract runs every path over the given lessons and steps.
func Extract(lessons []content.Lesson, steps []content.SceneStep) []string {
	set := NewSet()
	for _, l := range lessons {
		set.Add(FromLesson(l)...)
	}
	for _, s := range steps {
		set.Add(FromSceneStep(s)...)
	}
	return set.Items()
}

// isWordRune keeps combining marks inside words so decomposed text and
// scripts written with marks (Devanagari, Thai) are not split apart.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.In(r, unicode.Mn, unicode.Mc) || isApostrophe(r)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

func lower(s string) string {
	// Casers are stateful; never share one across goroutines.
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}
