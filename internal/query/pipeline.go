// Package query implements the end-to-end query pipeline: optional
// rewrite, embedding, lazy snapshot load, parallel fact/hybrid/entity
// search under the container read lock, counting-query decomposition,
// session-boost + parent-chunk injection, optional LLM rerank, graph
// context attachment, and profile append — assembled into a single
// heterogeneous result list. Each stage is its own step, errors propagate
// from the ones that matter, and auxiliary-LLM failures degrade to the
// identity rather than failing the whole search.
package query

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"ragmemory/internal/config"
	"ragmemory/internal/container"
	"ragmemory/internal/embedding"
	"ragmemory/internal/facts"
	"ragmemory/internal/hybrid"
	"ragmemory/internal/logging"
	"ragmemory/internal/model"
	"ragmemory/internal/persistence/pg"
	"ragmemory/internal/persistence/snapshot"
	"ragmemory/internal/profile"
)

// graphMaxHops bounds the breadth-first graph-context attachment step.
const graphMaxHops = 2

// Pipeline runs Search against either backend, selected once at
// construction via the index implementation it holds.
type Pipeline struct {
	idx      index
	embedder embedding.Embedder
	llm      LLM // nil disables rewrite/decompose/rerank entirely

	rerankerEnabled     bool
	queryRewriteEnabled bool
	graphEnabled        bool
	decomposeEnabled    bool
	rerankOverfetch     int
	factSearchLimit     int
	sessionBoost        float64
}

// NewMemoryPipeline builds a Pipeline backed by the in-memory indices,
// persisted through snap (nil disables on-disk lazy loading).
func NewMemoryPipeline(reg *container.Registry, snap *snapshot.Backend, embedder embedding.Embedder, llm LLM, cfg *config.Config) *Pipeline {
	return newPipeline(newMemIndex(reg, snap), embedder, llm, cfg)
}

// NewRelationalPipeline builds a Pipeline backed by the Postgres backend.
func NewRelationalPipeline(backend *pg.Backend, embedder embedding.Embedder, llm LLM, cfg *config.Config) *Pipeline {
	return newPipeline(newPGIndex(backend), embedder, llm, cfg)
}

func newPipeline(idx index, embedder embedding.Embedder, llm LLM, cfg *config.Config) *Pipeline {
	return &Pipeline{
		idx:                 idx,
		embedder:            embedder,
		llm:                 llm,
		rerankerEnabled:     cfg.RerankerEnabled && llm != nil,
		queryRewriteEnabled: cfg.QueryRewriteEnabled && llm != nil,
		graphEnabled:        cfg.GraphEnabled,
		decomposeEnabled:    cfg.DecomposeEnabled && llm != nil,
		rerankOverfetch:     cfg.RerankOverfetch,
		factSearchLimit:     cfg.FactSearchLimit,
		sessionBoost:        cfg.SessionBoost,
	}
}

// retrieval is what step 4's parallel fan-out produces.
type retrieval struct {
	factResults  []facts.Result
	hybridResult []hybrid.Result
	seeds        []string
}

// Search runs the ten-step pipeline for rawQuery against tag, returning
// at most limit chunk results plus any graph and profile records.
func (p *Pipeline) Search(ctx context.Context, tag, rawQuery string, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	// Step 1: optional rewrite.
	effectiveQuery := rawQuery
	if p.queryRewriteEnabled {
		rewritten, err := p.llm.Rewrite(ctx, rawQuery)
		if err != nil {
			logging.Log.Warnf("query: rewrite errored, using original query: %v", err)
		} else {
			effectiveQuery = rewritten
		}
	}

	// Step 2: embed with retry.
	vecs, err := embedding.EmbedWithRetry(ctx, p.embedder, []string{effectiveQuery}, sleepSeconds)
	if err != nil {
		return nil, err
	}
	queryEmbedding := vecs[0]

	// Step 3: lazy snapshot load.
	if err := p.idx.EnsureLoaded(ctx, tag); err != nil {
		return nil, err
	}

	// Step 4: parallel fact/hybrid/entity search under the read lock.
	overfetch := overfetchLimit(limit, p.rerankOverfetch, p.rerankerEnabled)
	var r retrieval
	err = p.idx.WithReadLock(ctx, tag, func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			fr, err := p.idx.FactSearch(gctx, tag, queryEmbedding, p.factSearchLimit)
			r.factResults = fr
			return err
		})
		g.Go(func() error {
			hr, err := p.idx.HybridSearch(gctx, tag, queryEmbedding, effectiveQuery, overfetch)
			r.hybridResult = hr
			return err
		})
		g.Go(func() error {
			r.seeds = p.idx.FindEntities(gctx, tag, rawQuery)
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	results := r.hybridResult

	// Step 5: counting-query decomposition.
	if p.decomposeEnabled && isCountingQuery(rawQuery) {
		results, err = p.decomposeAndUnion(ctx, tag, rawQuery, results, overfetch)
		if err != nil {
			logging.Log.Warnf("query: decomposition search failed, continuing with main results: %v", err)
		}
	}

	// Step 6: session boost + parent-chunk injection.
	fetchChunks := func(sessionID string) []model.Chunk {
		return p.idx.ChunksBySession(ctx, tag, sessionID)
	}
	results = facts.InjectWithFetcher(r.factResults, results, p.sessionBoost, fetchChunks)

	// Step 7: optional LLM rerank.
	if p.rerankerEnabled && len(results) > limit {
		results = rerank(ctx, p.llm, effectiveQuery, results, limit)
	} else if len(results) > limit {
		results = results[:limit]
	}

	out := make([]model.SearchResult, 0, len(results))
	for i := range results {
		c := results[i].Chunk
		out = append(out, model.SearchResult{Type: model.ResultChunk, Score: results[i].Score, Chunk: &c})
	}

	// Step 8: graph context attachment.
	if p.graphEnabled && len(r.seeds) > 0 {
		gc := p.idx.GraphContext(ctx, tag, r.seeds, graphMaxHops)
		for i := range gc.Nodes {
			n := gc.Nodes[i]
			out = append(out, model.SearchResult{Type: model.ResultEntity, Entity: &n})
		}
		for i := range gc.Edges {
			e := gc.Edges[i]
			out = append(out, model.SearchResult{Type: model.ResultRelationship, Relationship: &e})
		}
	}

	// Step 9: profile append.
	profileFacts := p.idx.Profile(ctx, tag)
	if block := profile.FormatBlock(profileFacts); block != "" {
		out = append(out, model.SearchResult{Type: model.ResultProfile, Profile: &model.ProfileFact{Content: block}})
	}

	// Step 10: return the assembled heterogeneous list.
	return out, nil
}

// decomposeAndUnion asks the LLM for sub-queries, embeds and
// hybrid-searches each, and unions the hits into base by
// (sessionId, chunkIndex), re-sorting the combined list by score.
func (p *Pipeline) decomposeAndUnion(ctx context.Context, tag, rawQuery string, base []hybrid.Result, k int) ([]hybrid.Result, error) {
	subQueries, err := p.llm.Decompose(ctx, rawQuery, maxSubQueries)
	if err != nil || len(subQueries) == 0 {
		return base, err
	}

	seen := make(map[[2]any]bool, len(base))
	for _, r := range base {
		seen[unionKey(r.Chunk)] = true
	}

	for _, sq := range subQueries {
		vecs, err := embedding.EmbedWithRetry(ctx, p.embedder, []string{sq}, sleepSeconds)
		if err != nil {
			logging.Log.Warnf("query: sub-query embedding failed for %q: %v", sq, err)
			continue
		}
		var subResults []hybrid.Result
		err = p.idx.WithReadLock(ctx, tag, func() error {
			var err error
			subResults, err = p.idx.HybridSearch(ctx, tag, vecs[0], sq, k)
			return err
		})
		if err != nil {
			logging.Log.Warnf("query: sub-query hybrid search failed for %q: %v", sq, err)
			continue
		}
		for _, r := range subResults {
			key := unionKey(r.Chunk)
			if seen[key] {
				continue
			}
			seen[key] = true
			base = append(base, r)
		}
	}

	sort.SliceStable(base, func(i, j int) bool {
		if base[i].Score != base[j].Score {
			return base[i].Score > base[j].Score
		}
		return base[i].Chunk.ID < base[j].Chunk.ID
	})
	return base, nil
}

func unionKey(c model.Chunk) [2]any {
	return [2]any{c.SessionID, c.ChunkIndex}
}
