// Package tokenizer splits record keys and query strings into the words
// the prefix index operates on. Input is lower-cased and split on Unicode
// whitespace; empty words produced by repeated separators are dropped.
package tokenizer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Lower returns text lower-cased with language-neutral rules.
func Lower(text string) string {
	// Casers carry state and must not be shared between goroutines.
	return cases.Lower(language.Und).String(text)
}

// Words lower-cases text and splits it on whitespace. It returns nil when
// text holds no words.
func Words(text string) []string {
	if text == "" {
		return nil
	}
	words := strings.Fields(Lower(text))
	if len(words) == 0 {
		return nil
	}
	return words
}

// IsBlank reports whether text contains no indexable words.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
