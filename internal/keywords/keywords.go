// Package keywords reduces free-form reviewer guidance to a compact set of
// salient phrases before it is folded into the evaluation prompt. It is a
// pure heuristic stand-in for the NLP collaborator at the system boundary:
// no side effects, and an empty result is a valid outcome.
package keywords

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "do": true, "for": true,
	"from": true, "had": true, "has": true, "have": true, "he": true,
	"her": true, "his": true, "how": true, "i": true, "if": true, "in": true,
	"is": true, "it": true, "its": true, "me": true, "my": true, "no": true,
	"not": true, "of": true, "on": true, "or": true, "our": true,
	"please": true, "she": true, "should": true, "so": true, "that": true,
	"the": true, "their": true, "them": true, "they": true, "this": true,
	"to": true, "was": true, "we": true, "were": true, "what": true,
	"when": true, "which": true, "will": true, "with": true, "would": true,
	"you": true, "your": true,
}

// Extract pulls salient words and adjacent-word phrases from text. A phrase
// that is a substring of a longer retained phrase is dropped in favor of the
// longer one. Output is deduplicated and sorted so downstream prompt
// assembly is deterministic.
func Extract(text string) []string {
	tokens := tokenize(text)

	seen := make(map[string]bool)
	for i, tok := range tokens {
		if stopwords[tok] || len(tok) < 3 {
			continue
		}
		seen[tok] = true
		if i+1 < len(tokens) {
			next := tokens[i+1]
			if !stopwords[next] && len(next) >= 3 {
				seen[tok+" "+next] = true
			}
		}
	}

	// Prefer the longer phrase when a shorter one is contained in it.
	var out []string
	for kw := range seen {
		contained := false
		for other := range seen {
			if kw != other && strings.Contains(other, kw) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
