// decompose.go implements the counting-query heuristic: detect whether a
// query is asking "how many", and if so, ask the LLM for a handful of
// sub-queries whose combined hybrid-search hits approximate the true count
// better than a single search would.
package query

import (
	"regexp"
	"strings"
)

// countingPattern matches the common English phrasings of a counting
// question. It is intentionally narrow: a false negative just means the
// query runs through the normal single-query path, which is always safe.
var countingPattern = regexp.MustCompile(`(?i)\bhow many\b|\bnumber of\b|\bhow much\b.*\b(times|occasions)\b|\bcount(s|ing)?\b|\btotal\b`)

// isCountingQuery reports whether query looks like a counting question.
func isCountingQuery(query string) bool {
	return countingPattern.MatchString(strings.TrimSpace(query))
}

// maxSubQueries bounds how many decomposed sub-queries decompose asks for.
const maxSubQueries = 5
