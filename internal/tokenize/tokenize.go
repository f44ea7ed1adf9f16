// Package tokenize implements the tokenizer shared by the BM25 index and
// entity-graph seed matching: lowercase, strip non-alphanumerics to whitespace,
// split, drop tokens shorter than two characters.
package tokenize

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Tokens returns the normalized token list for text. A small English
// stop-list is intentionally not applied, so BM25 and entity-seed matching
// see the same token stream regardless of which common words a given
// corpus happens to favor.
func Tokens(text string) []string {
	lower := strings.ToLower(text)
	cleaned := nonAlnum.ReplaceAllString(lower, " ")
	fields := strings.Fields(cleaned)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// ContainsToken reports whether needle appears as a whitespace-delimited
// token of haystack, used by the entity graph's findEntitiesInQuery.
func ContainsToken(haystack []string, needle string) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}
