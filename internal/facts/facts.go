// Package facts owns per-container atomic facts with cosine lookup, plus
// the parent-chunk injection protocol that promotes hybrid-search results
// based on matching facts. Parent-chunk linkage is by substring
// containment at query time rather than a persisted foreign key, so
// extraction drift never corrupts the index.
package facts

import (
	"sort"
	"strings"
	"sync"

	"ragmemory/internal/hybrid"
	"ragmemory/internal/model"
	"ragmemory/internal/vectorindex"
)

// Result is one scored fact returned by Search.
type Result struct {
	Fact  model.AtomicFact
	Score float64
}

// Store is the per-container atomic-fact index.
type Store struct {
	mu    sync.RWMutex
	dim   int
	facts map[string]model.AtomicFact
	vec   *vectorindex.Index
}

// NewStore constructs an empty Store fixed to dim embedding dimensions.
func NewStore(dim int) *Store {
	return &Store{dim: dim, facts: make(map[string]model.AtomicFact), vec: vectorindex.NewIndex(dim)}
}

// AddFacts indexes facts, replacing any existing fact with the same ID.
func (s *Store) AddFacts(facts []model.AtomicFact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		s.facts[f.ID] = f
		s.vec.Add(f.ID, f.Embedding)
	}
}

// GetFactCount returns the number of indexed facts.
func (s *Store) GetFactCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = make(map[string]model.AtomicFact)
	s.vec.Clear()
}

// Search returns the top limit facts by cosine similarity to
// queryEmbedding, descending, ties broken by id.
func (s *Store) Search(queryEmbedding []float32, limit int) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.facts) == 0 {
		return nil
	}
	cos := s.vec.CosineAll(queryEmbedding)
	out := make([]Result, 0, len(s.facts))
	for id, f := range s.facts {
		out = append(out, Result{Fact: f, Score: cos[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Fact.ID < out[j].Fact.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Save returns a JSON-serializable snapshot of the store.
func (s *Store) Save() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	facts := make([]model.AtomicFact, 0, len(s.facts))
	for _, f := range s.facts {
		facts = append(facts, f)
	}
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].SessionID != facts[j].SessionID {
			return facts[i].SessionID < facts[j].SessionID
		}
		return facts[i].FactIndex < facts[j].FactIndex
	})
	return Snapshot{Version: 1, Facts: facts}
}

// Load replaces the store's contents with the given snapshot.
func (s *Store) Load(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = make(map[string]model.AtomicFact, len(snap.Facts))
	s.vec.Clear()
	for _, f := range snap.Facts {
		s.facts[f.ID] = f
		s.vec.Add(f.ID, f.Embedding)
	}
}

// Snapshot is the on-disk representation of a Store (facts.json).
type Snapshot struct {
	Version int                `json:"version"`
	Facts   []model.AtomicFact `json:"facts"`
}

// InjectionParams tunes the three-step injection protocol.
type InjectionParams struct {
	FactSearchLimit int     // default 30
	SessionBoost    float64 // default 0.1
}

// DefaultInjectionParams returns the default tuning values.
func DefaultInjectionParams() InjectionParams {
	return InjectionParams{FactSearchLimit: 30, SessionBoost: 0.1}
}

// Inject runs the three-step parent-chunk injection protocol against an
// already-computed hybrid result set, given the fact store and a way to
// fetch a session's chunks (hybrid.Engine.GetChunksBySession).
//
//  1. Fact search with FactSearchLimit. Collect session ids S among the
//     top facts.
//  2. For every chunk already in results whose SessionID is in S, add
//     SessionBoost to its score; re-sort.
//  3. For the top 10 facts, fetch the chunks of their sessions. For any
//     chunk whose content contains the fact's content as a substring and
//     is not already in results, append it with score = fact score.
func Inject(store *Store, engine *hybrid.Engine, queryEmbedding []float32, results []hybrid.Result, params InjectionParams) []hybrid.Result {
	topFacts := store.Search(queryEmbedding, params.FactSearchLimit)
	return InjectWithFetcher(topFacts, results, params.SessionBoost, engine.GetChunksBySession)
}

// InjectWithFetcher is the backend-agnostic core of the injection
// protocol: it takes the already-searched top facts and a function that
// fetches a session's chunks, so the relational backend (which has no
// *Store/*hybrid.Engine of its own) can drive the identical three-step
// protocol against SQL-fetched data. Inject is a thin wrapper of this for
// the in-memory backend.
func InjectWithFetcher(topFacts []Result, results []hybrid.Result, sessionBoost float64, fetchChunksBySession func(sessionID string) []model.Chunk) []hybrid.Result {
	if len(topFacts) == 0 {
		return results
	}

	sessionsWithFacts := make(map[string]bool)
	for _, r := range topFacts {
		sessionsWithFacts[r.Fact.SessionID] = true
	}

	present := make(map[string]bool, len(results))
	for i := range results {
		present[results[i].Chunk.ID] = true
		if sessionsWithFacts[results[i].Chunk.SessionID] {
			results[i].Score += sessionBoost
		}
	}
	sortByScore(results)

	topTen := topFacts
	if len(topTen) > 10 {
		topTen = topTen[:10]
	}
	seenSessions := make(map[string][]model.Chunk)
	for _, r := range topTen {
		fact := r.Fact
		chunks, ok := seenSessions[fact.SessionID]
		if !ok {
			chunks = fetchChunksBySession(fact.SessionID)
			seenSessions[fact.SessionID] = chunks
		}
		for _, c := range chunks {
			if present[c.ID] {
				continue
			}
			if strings.Contains(c.Content, fact.Content) {
				results = append(results, hybrid.Result{
					Chunk:       c,
					Score:       r.Score,
					VectorScore: 0,
					BM25Score:   0,
				})
				present[c.ID] = true
			}
		}
	}
	sortByScore(results)
	return results
}

func sortByScore(results []hybrid.Result) {
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
