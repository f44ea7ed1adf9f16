// store.go defines the single seam the query pipeline branches on between
// the in-memory backend and the optional relational backend. Both
// implementations expose the same narrow read surface; the pipeline
// itself never touches container.Registry or pg.Backend directly.
package query

import (
	"context"

	"ragmemory/internal/container"
	"ragmemory/internal/facts"
	"ragmemory/internal/graph"
	"ragmemory/internal/hybrid"
	"ragmemory/internal/model"
	"ragmemory/internal/persistence/pg"
	"ragmemory/internal/persistence/snapshot"
)

// index is the backend-agnostic read surface the pipeline needs.
type index interface {
	// EnsureLoaded lazily loads a container's on-disk snapshot into memory
	// the first time it's searched; a no-op for the relational backend,
	// which is always authoritative.
	EnsureLoaded(ctx context.Context, tag string) error
	// WithReadLock runs fn holding the container's read lock (in-memory
	// backend) or simply calls fn (relational backend, whose concurrency
	// is the database's concern, not this process's).
	WithReadLock(ctx context.Context, tag string, fn func() error) error

	FactSearch(ctx context.Context, tag string, queryEmbedding []float32, limit int) ([]facts.Result, error)
	HybridSearch(ctx context.Context, tag string, queryEmbedding []float32, rawQuery string, k int) ([]hybrid.Result, error)
	ChunksBySession(ctx context.Context, tag, sessionID string) []model.Chunk
	FindEntities(ctx context.Context, tag, text string) []string
	GraphContext(ctx context.Context, tag string, seeds []string, maxHops int) graph.Context
	Profile(ctx context.Context, tag string) []model.ProfileFact
}

// memIndex is the default in-memory-backed index, lazily loading each
// container's snapshot from disk on first touch.
type memIndex struct {
	registry *container.Registry
	snap     *snapshot.Backend
}

func newMemIndex(reg *container.Registry, snap *snapshot.Backend) index {
	return &memIndex{registry: reg, snap: snap}
}

func (m *memIndex) EnsureLoaded(ctx context.Context, tag string) error {
	c, err := m.registry.GetOrCreate(ctx, tag)
	if err != nil {
		return err
	}
	if c.Loaded() || m.snap == nil {
		return nil
	}
	if !m.snap.HasSnapshot(tag) {
		return nil
	}
	return m.snap.Load(ctx, tag, c)
}

func (m *memIndex) WithReadLock(ctx context.Context, tag string, fn func() error) error {
	c, err := m.registry.GetOrCreate(ctx, tag)
	if err != nil {
		return err
	}
	c.RLock()
	defer c.RUnlock()
	return fn()
}

func (m *memIndex) FactSearch(ctx context.Context, tag string, queryEmbedding []float32, limit int) ([]facts.Result, error) {
	c, err := m.registry.GetOrCreate(ctx, tag)
	if err != nil {
		return nil, err
	}
	return c.Facts.Search(queryEmbedding, limit), nil
}

func (m *memIndex) HybridSearch(ctx context.Context, tag string, queryEmbedding []float32, rawQuery string, k int) ([]hybrid.Result, error) {
	c, err := m.registry.GetOrCreate(ctx, tag)
	if err != nil {
		return nil, err
	}
	return c.Hybrid.Search(queryEmbedding, rawQuery, k), nil
}

func (m *memIndex) ChunksBySession(ctx context.Context, tag, sessionID string) []model.Chunk {
	c, err := m.registry.GetOrCreate(ctx, tag)
	if err != nil {
		return nil
	}
	return c.Hybrid.GetChunksBySession(sessionID)
}

func (m *memIndex) FindEntities(ctx context.Context, tag, text string) []string {
	c, err := m.registry.GetOrCreate(ctx, tag)
	if err != nil {
		return nil
	}
	return c.Graph.FindEntitiesInQuery(text)
}

func (m *memIndex) GraphContext(ctx context.Context, tag string, seeds []string, maxHops int) graph.Context {
	c, err := m.registry.GetOrCreate(ctx, tag)
	if err != nil {
		return graph.Context{}
	}
	return c.Graph.GetContext(seeds, maxHops)
}

func (m *memIndex) Profile(ctx context.Context, tag string) []model.ProfileFact {
	c, err := m.registry.GetOrCreate(ctx, tag)
	if err != nil {
		return nil
	}
	return c.Profile.Facts()
}

// pgIndex is the relational-backend index: reads go straight to Postgres,
// which owns its own concurrency, so WithReadLock/EnsureLoaded are no-ops.
type pgIndex struct {
	backend *pg.Backend
}

func newPGIndex(b *pg.Backend) index { return &pgIndex{backend: b} }

func (p *pgIndex) EnsureLoaded(ctx context.Context, tag string) error { return nil }

func (p *pgIndex) WithReadLock(ctx context.Context, tag string, fn func() error) error {
	return fn()
}

func (p *pgIndex) FactSearch(ctx context.Context, tag string, queryEmbedding []float32, limit int) ([]facts.Result, error) {
	return p.backend.SearchFacts(ctx, tag, queryEmbedding, limit)
}

func (p *pgIndex) HybridSearch(ctx context.Context, tag string, queryEmbedding []float32, rawQuery string, k int) ([]hybrid.Result, error) {
	return p.backend.Search(ctx, tag, queryEmbedding, rawQuery, k)
}

func (p *pgIndex) ChunksBySession(ctx context.Context, tag, sessionID string) []model.Chunk {
	chunks, err := p.backend.GetChunksBySession(ctx, tag, sessionID)
	if err != nil {
		return nil
	}
	return chunks
}

func (p *pgIndex) FindEntities(ctx context.Context, tag, text string) []string {
	seeds, err := p.backend.FindEntitiesInQuery(ctx, tag, text)
	if err != nil {
		return nil
	}
	return seeds
}

func (p *pgIndex) GraphContext(ctx context.Context, tag string, seeds []string, maxHops int) graph.Context {
	gc, err := p.backend.GetContext(ctx, tag, seeds, maxHops)
	if err != nil {
		return graph.Context{}
	}
	return gc
}

func (p *pgIndex) Profile(ctx context.Context, tag string) []model.ProfileFact {
	facts, err := p.backend.GetProfile(ctx, tag)
	if err != nil {
		return nil
	}
	return facts
}
