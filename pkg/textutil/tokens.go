// Package textutil provides tokenization helpers for keyword extraction.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords are excluded from keyword extraction. Beyond common English
// function words, the set strips boilerplate that appears in virtually every
// support ticket and would otherwise dominate the frequency tables.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "must": true,
	"this": true, "that": true, "these": true, "those": true, "but": true,
	"then": true, "from": true, "with": true, "about": true, "into": true,
	"not": true, "its": true, "which": true, "who": true, "what": true,
	"when": true, "where": true, "how": true, "why": true, "you": true,
	"your": true, "our": true, "per": true, "via": true, "all": true,
	"any": true, "can": true, "cannot": true, "upon": true, "also": true,

	// Ticket boilerplate.
	"ticket": true, "request": true, "incident": true, "issue": true,
	"system": true, "service": true, "title": true, "description": true,
	"detailed": true, "hello": true, "good": true, "morning": true,
	"afternoon": true, "regards": true, "thanks": true, "thank": true,
	"please": true, "dear": true, "team": true,
}

// Tokenize lowercases the text and returns its alphabetic tokens of three or
// more letters, with stop words removed. Token order follows the text.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		if stopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// TokenSet returns the distinct tokens of the text as a set.
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		set[tok] = true
	}
	return set
}
