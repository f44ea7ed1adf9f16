// Package vectorindex is a brute-force cosine-similarity index over
// fixed-dimension embeddings. It is exact rather than approximate: every
// indexed vector is scored against the query, which is what the hybrid
// engine's per-query min-max normalization requires.
package vectorindex

import (
	"math"
	"sync"
)

type entry struct {
	vec  []float32
	norm float64
}

// Index holds vectors keyed by string id.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]entry
	order   []string
}

// NewIndex constructs an empty Index fixed to dim dimensions.
func NewIndex(dim int) *Index {
	return &Index{dim: dim, entries: make(map[string]entry)}
}

// Add inserts or replaces the vector for id. Vectors of the wrong
// dimension are silently skipped (the caller is expected to have
// validated dimensionality at the embedder boundary).
func (idx *Index) Add(id string, vec []float32) {
	if len(vec) != idx.dim {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.entries[id]; !exists {
		idx.order = append(idx.order, id)
	}
	idx.entries[id] = entry{vec: vec, norm: norm(vec)}
}

// Remove deletes id from the index, if present.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.entries[id]; !ok {
		return
	}
	delete(idx.entries, id)
	for i, v := range idx.order {
		if v == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
}

// Clear empties the index.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string]entry)
	idx.order = nil
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.order)
}

// CosineAll returns cosine(query, v) for every indexed id, clamped to
// [-1, 1]. The map is the full candidate pool the hybrid engine needs for
// min-max normalization.
func (idx *Index) CosineAll(query []float32) map[string]float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	qn := norm(query)
	out := make(map[string]float64, len(idx.order))
	for _, id := range idx.order {
		e := idx.entries[id]
		out[id] = clamp(cosine(query, e.vec, qn, e.norm), -1, 1)
	}
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, an, bn float64) float64 {
	if an == 0 || bn == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
