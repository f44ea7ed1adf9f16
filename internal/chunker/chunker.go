// Package chunker splits rendered session text into overlapping passages
// at natural boundaries, per the boundary-search algorithm of the
// retrieval engine's chunking component.
package chunker

import "strings"

// Split divides text into an ordered list of non-empty trimmed passages of
// at most chunkSize runes each, overlapping by roughly overlap characters
// where a break point allows it.
//
// If text fits within chunkSize it is returned as the sole chunk. Otherwise,
// starting at offset 0, a hard boundary end = start+chunkSize is computed
// and then slid backward to the last ". " boundary no earlier than
// start+0.5*chunkSize; failing that, the last newline; failing that, the
// last space; failing that, the hard boundary is kept. The chunk is
// text[start:end] (trimmed); the next start is end-overlap, clamped to
// guarantee forward progress.
func Split(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= chunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var out []string
	start := 0
	for start < n {
		hardEnd := start + chunkSize
		if hardEnd > n {
			hardEnd = n
		}
		end := hardEnd
		if hardEnd < n {
			end = slideBoundary(runes, start, hardEnd, chunkSize)
		}
		if end <= start {
			end = hardEnd
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}

		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		if next < 0 {
			next = 0
		}
		start = next
	}
	return out
}

// slideBoundary searches backward from hardEnd (exclusive) for the
// preferred break point, never moving before minBoundary =
// start + 0.5*chunkSize. Precedence: ". " sentence boundary, then
// newline, then space, then the hard cut at hardEnd. The returned value
// is an exclusive end index that includes the boundary character itself.
func slideBoundary(runes []rune, start, hardEnd, chunkSize int) int {
	minBoundary := start + chunkSize/2
	if minBoundary < start {
		minBoundary = start
	}

	if i := lastSentenceBoundary(runes, minBoundary, hardEnd-1); i >= 0 {
		return i + 1
	}
	if i := lastRune(runes, minBoundary, hardEnd-1, '\n'); i >= 0 {
		return i + 1
	}
	if i := lastRune(runes, minBoundary, hardEnd-1, ' '); i >= 0 {
		return i + 1
	}
	return hardEnd
}

// lastSentenceBoundary returns the index of the '.' in the last ". "
// occurrence within [minBoundary, maxIdx], or -1 if none exists.
func lastSentenceBoundary(runes []rune, minBoundary, maxIdx int) int {
	for i := maxIdx; i >= minBoundary; i-- {
		if i < 0 || i+1 >= len(runes) {
			continue
		}
		if runes[i] == '.' && runes[i+1] == ' ' {
			return i
		}
	}
	return -1
}

func lastRune(runes []rune, minBoundary, maxIdx int, target rune) int {
	for i := maxIdx; i >= minBoundary; i-- {
		if i < 0 {
			continue
		}
		if runes[i] == target {
			return i
		}
	}
	return -1
}
