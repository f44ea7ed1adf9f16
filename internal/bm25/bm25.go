// Package bm25 implements a hand-rolled BM25 postings index. A
// library-backed scorer (bleve, as used elsewhere in the example corpus)
// was considered and rejected: it does not expose raw scores under
// caller-controlled k1/b, nor the engine's required per-query min-max
// normalization, both of which are load-bearing for the hybrid fusion
// formula. See DESIGN.md.
package bm25

import (
	"math"
	"sort"

	"ragmemory/internal/tokenize"
)

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Index is a term -> postings inverted index over a set of documents
// identified by string id. It is not safe for concurrent use; callers
// serialize access via the owning container's lock.
type Index struct {
	k1, b float64

	postings map[string]map[string]int // term -> docID -> term frequency
	docLen   map[string]int            // docID -> token count
	docOrder []string                  // insertion order, for stable iteration
	totalLen int
}

// NewIndex constructs an empty Index using the standard k1=1.2, b=0.75
// parameters.
func NewIndex() *Index {
	return &Index{
		k1:       DefaultK1,
		b:        DefaultB,
		postings: make(map[string]map[string]int),
		docLen:   make(map[string]int),
	}
}

// Add indexes text under docID, tokenizing it with the shared tokenizer.
// Re-adding the same docID replaces its prior postings.
func (idx *Index) Add(docID, text string) {
	idx.Remove(docID)

	terms := tokenize.Tokens(text)
	if len(terms) == 0 {
		idx.docLen[docID] = 0
		idx.docOrder = append(idx.docOrder, docID)
		return
	}
	counts := make(map[string]int)
	for _, t := range terms {
		counts[t]++
	}
	for t, c := range counts {
		if idx.postings[t] == nil {
			idx.postings[t] = make(map[string]int)
		}
		idx.postings[t][docID] = c
	}
	idx.docLen[docID] = len(terms)
	idx.docOrder = append(idx.docOrder, docID)
	idx.totalLen += len(terms)
}

// Remove deletes docID from the index, if present.
func (idx *Index) Remove(docID string) {
	if _, ok := idx.docLen[docID]; !ok {
		return
	}
	idx.totalLen -= idx.docLen[docID]
	delete(idx.docLen, docID)
	for _, postings := range idx.postings {
		delete(postings, docID)
	}
	for i, id := range idx.docOrder {
		if id == docID {
			idx.docOrder = append(idx.docOrder[:i], idx.docOrder[i+1:]...)
			break
		}
	}
}

// Clear empties the index.
func (idx *Index) Clear() {
	idx.postings = make(map[string]map[string]int)
	idx.docLen = make(map[string]int)
	idx.docOrder = nil
	idx.totalLen = 0
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int { return len(idx.docOrder) }

func (idx *Index) avgDocLen() float64 {
	if len(idx.docOrder) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.docOrder))
}

// RawScores computes the standard BM25 score for every document that
// shares at least one query term, given the raw (untokenized) query. It
// does not normalize; callers apply min-max normalization across the
// candidate pool themselves (see hybrid.Engine.Search).
func (idx *Index) RawScores(query string) map[string]float64 {
	terms := tokenize.Tokens(query)
	scores := make(map[string]float64)
	if len(terms) == 0 || len(idx.docOrder) == 0 {
		return scores
	}
	n := float64(len(idx.docOrder))
	avgdl := idx.avgDocLen()

	// Dedup query terms; standard BM25 scores over the distinct query
	// tokens, term frequency in the query itself is not part of the formula.
	seen := make(map[string]bool)
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		postings, ok := idx.postings[term]
		if !ok || len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := idf(n, df)

		for docID, tf := range postings {
			dl := float64(idx.docLen[docID])
			denom := float64(tf) + idx.k1*(1-idx.b+idx.b*dl/avgdl)
			score := idf * (float64(tf) * (idx.k1 + 1) / denom)
			scores[docID] += score
		}
	}
	return scores
}

// idf is the standard BM25 inverse document frequency with the +1 floor
// that keeps it non-negative for common terms.
func idf(n, df float64) float64 {
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// MinMaxNormalize rescales scores into [0,1] across the candidate pool.
// A pool of one element (or all-equal scores) maps every score to 1.0 so
// that a single candidate is not unfairly zeroed out.
func MinMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := minMax(scores)
	out := make(map[string]float64, len(scores))
	if max-min < 1e-12 {
		for id := range scores {
			out[id] = 1.0
		}
		return out
	}
	for id, s := range scores {
		out[id] = (s - min) / (max - min)
	}
	return out
}

func minMax(scores map[string]float64) (float64, float64) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic in case of ties during development/debugging
	min, max := scores[ids[0]], scores[ids[0]]
	for _, id := range ids {
		v := scores[id]
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
