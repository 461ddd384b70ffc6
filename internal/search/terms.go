// Package search implements the retrieval-and-ranking engine: term
// extraction, relevance scoring, deduplication and ranking, the result
// cache, and the search orchestrator.
package search

import (
	"strings"
)

// stopwords are common words excluded from term extraction. An n-gram is
// dropped only when every constituent word is a stopword.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "for": {}, "this": {}, "that": {},
	"from": {}, "been": {}, "have": {}, "has": {}, "not": {}, "are": {},
	"were": {}, "was": {}, "being": {}, "can": {}, "could": {}, "will": {},
	"would": {}, "should": {}, "may": {}, "might": {},
}

// minTermLength is the minimum n-gram length after whitespace normalization.
const minTermLength = 4

// ExtractTerms derives the normalized term set of a text: unigrams, bigrams
// and trigrams over lower-cased whitespace tokens longer than two characters,
// excluding n-grams made entirely of stopwords and n-grams shorter than four
// characters. The function is pure; identical input yields an identical set.
func ExtractTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	if text == "" {
		return terms
	}

	fields := strings.Fields(strings.ToLower(text))
	words := fields[:0]
	for _, w := range fields {
		if len(w) > 2 {
			words = append(words, w)
		}
	}

	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(words); i++ {
			gram := strings.Join(words[i:i+n], " ")
			if len(gram) < minTermLength {
				continue
			}
			if allStopwords(words[i : i+n]) {
				continue
			}
			terms[gram] = struct{}{}
		}
	}

	return terms
}

// allStopwords reports whether every word of an n-gram is a stopword.
func allStopwords(words []string) bool {
	for _, w := range words {
		if _, ok := stopwords[w]; !ok {
			return false
		}
	}
	return true
}

// QueryTerms lowercases the raw phrases of the three query lists, preserving
// insertion order and dropping duplicates and blanks. These are matched
// against extracted record terms by the scorer.
func QueryTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
