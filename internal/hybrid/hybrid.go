// Package hybrid owns, per container, a dense vector store and a sparse
// BM25 postings index, fused into a single weighted score: 0.7 cosine +
// 0.3 BM25, both independently min-max normalized across the candidate
// pool.
package hybrid

import (
	"sort"
	"sync"

	"ragmemory/internal/bm25"
	"ragmemory/internal/model"
	"ragmemory/internal/vectorindex"
)

const (
	vectorWeight = 0.7
	bm25Weight   = 0.3
)

// Result is one scored chunk returned by Search.
type Result struct {
	Chunk       model.Chunk
	Score       float64
	VectorScore float64
	BM25Score   float64
}

// Engine is the per-container hybrid search index.
type Engine struct {
	mu     sync.RWMutex
	dim    int
	chunks map[string]model.Chunk
	vec    *vectorindex.Index
	text   *bm25.Index
}

// NewEngine constructs an empty Engine fixed to dim embedding dimensions.
func NewEngine(dim int) *Engine {
	return &Engine{
		dim:    dim,
		chunks: make(map[string]model.Chunk),
		vec:    vectorindex.NewIndex(dim),
		text:   bm25.NewIndex(),
	}
}

// AddChunks indexes chunks, replacing any existing chunk with the same ID.
func (e *Engine) AddChunks(chunks []model.Chunk) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range chunks {
		e.chunks[c.ID] = c
		e.vec.Add(c.ID, c.Embedding)
		e.text.Add(c.ID, c.Content)
	}
}

// GetChunksBySession returns every chunk belonging to sessionID, ordered
// by ChunkIndex.
func (e *Engine) GetChunksBySession(sessionID string) []model.Chunk {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.Chunk
	for _, c := range e.chunks {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

// HasData reports whether the engine holds any chunks.
func (e *Engine) HasData() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.chunks) > 0
}

// Clear empties the engine.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chunks = make(map[string]model.Chunk)
	e.vec.Clear()
	e.text.Clear()
}

// Search returns the top k chunks for (queryEmbedding, rawQuery) by the
// weighted fusion score. An empty engine returns nil. Ties are broken by
// larger VectorScore, then lexicographically by chunk ID.
func (e *Engine) Search(queryEmbedding []float32, rawQuery string, k int) []Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.chunks) == 0 {
		return nil
	}

	vecScores := bm25.MinMaxNormalize(e.vec.CosineAll(queryEmbedding))
	bmScores := bm25.MinMaxNormalize(e.text.RawScores(rawQuery))

	results := make([]Result, 0, len(e.chunks))
	for id, c := range e.chunks {
		vs := vecScores[id]
		bs := bmScores[id]
		results = append(results, Result{
			Chunk:       c,
			Score:       vectorWeight*vs + bm25Weight*bs,
			VectorScore: vs,
			BM25Score:   bs,
		})
	}

	sortResults(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].VectorScore != results[j].VectorScore {
			return results[i].VectorScore > results[j].VectorScore
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

// Save returns a JSON-serializable snapshot of the engine's chunks. The
// vector and BM25 indices are rebuilt from the chunk list on Load, so only
// the chunks themselves need to be persisted.
func (e *Engine) Save() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	chunks := make([]model.Chunk, 0, len(e.chunks))
	for _, c := range e.chunks {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].SessionID != chunks[j].SessionID {
			return chunks[i].SessionID < chunks[j].SessionID
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return Snapshot{Version: 1, Chunks: chunks}
}

// Load replaces the engine's contents with the given snapshot.
func (e *Engine) Load(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chunks = make(map[string]model.Chunk, len(snap.Chunks))
	e.vec.Clear()
	e.text.Clear()
	for _, c := range snap.Chunks {
		e.chunks[c.ID] = c
		e.vec.Add(c.ID, c.Embedding)
		e.text.Add(c.ID, c.Content)
	}
}

// Snapshot is the on-disk representation of an Engine (search.json).
type Snapshot struct {
	Version int           `json:"version"`
	Chunks  []model.Chunk `json:"chunks"`
}
