package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ragmemory/internal/chunker"
	"ragmemory/internal/embedding"
	"ragmemory/internal/extractor"
	"ragmemory/internal/logging"
	"ragmemory/internal/model"
	"ragmemory/internal/persistence/pg"
	"ragmemory/internal/profile"
)

// RelationalOrchestrator mirrors Orchestrator's algorithm (extract, chunk,
// embed, commit) but commits directly to the Postgres backend instead of
// an in-memory Container, used when DATABASE_URL selects the relational
// backend at startup.
type RelationalOrchestrator struct {
	Extractor extractor.Extractor
	Embedder  embedding.Embedder
	Backend   *pg.Backend

	ChunkSize    int
	ChunkOverlap int
	BatchSize    int

	sem *semaphore.Weighted
}

// NewRelational constructs a RelationalOrchestrator with the same
// defaults as New.
func NewRelational(ex extractor.Extractor, emb embedding.Embedder, backend *pg.Backend, chunkSize, chunkOverlap, batchSize, extractConcurrency int) *RelationalOrchestrator {
	if batchSize <= 0 {
		batchSize = 10
	}
	if extractConcurrency <= 0 {
		extractConcurrency = 300
	}
	return &RelationalOrchestrator{
		Extractor:    ex,
		Embedder:     emb,
		Backend:      backend,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		BatchSize:    batchSize,
		sem:          semaphore.NewWeighted(int64(extractConcurrency)),
	}
}

// Ingest runs the same extract/chunk/embed sequence as Orchestrator.Ingest
// but commits each stage's output to the relational backend.
func (o *RelationalOrchestrator) Ingest(ctx context.Context, tag string, sessions []model.Session) ([]string, error) {
	out := make([]sessionExtraction, len(sessions))
	for start := 0; start < len(sessions); start += o.BatchSize {
		end := start + o.BatchSize
		if end > len(sessions) {
			end = len(sessions)
		}
		batch := sessions[start:end]
		g, gctx := errgroup.WithContext(ctx)
		for i, sess := range batch {
			idx := start + i
			sess := sess
			g.Go(func() error {
				if err := o.sem.Acquire(gctx, 1); err != nil {
					out[idx] = sessionExtraction{session: sess, err: err}
					return nil
				}
				defer o.sem.Release(1)
				result, err := o.Extractor.Extract(gctx, sess)
				if err != nil {
					logging.Log.Warnf("ingest: extraction failed for session %s: %v", sess.SessionID, err)
				}
				out[idx] = sessionExtraction{session: sess, result: result, err: err}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	for _, se := range out {
		if se.err != nil {
			continue
		}
		for _, e := range se.result.Entities {
			if err := o.Backend.AddEntity(ctx, tag, e.Name, e.Type, e.Summary, se.session.SessionID); err != nil {
				return nil, err
			}
		}
		for _, r := range se.result.Relationships {
			edge := model.RelationshipEdge{Source: r.Source, Relation: r.Relation, Target: r.Target, Date: r.Date, SessionID: se.session.SessionID}
			if err := o.Backend.AddRelationship(ctx, tag, edge); err != nil {
				return nil, err
			}
		}
	}

	var allChunks []model.Chunk
	var allFacts []model.AtomicFact
	var memoryTexts []string
	for _, se := range out {
		if se.err != nil {
			continue
		}
		date := se.session.Date
		header := fmt.Sprintf("# Memories from %s\n\n", date)
		chunks := chunker.Split(header+se.result.MemoriesText, o.ChunkSize, o.ChunkOverlap)
		for i, content := range chunks {
			allChunks = append(allChunks, model.Chunk{
				ID: ChunkID(tag, se.session.SessionID, i), Content: content,
				SessionID: se.session.SessionID, ChunkIndex: i, Date: date,
			})
		}
		factIdx := 0
		for _, line := range strings.Split(se.result.MemoriesText, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			allFacts = append(allFacts, model.AtomicFact{
				ID: FactID(tag, se.session.SessionID, factIdx), Content: line,
				SessionID: se.session.SessionID, FactIndex: factIdx, Date: date,
			})
			factIdx++
		}
		if strings.TrimSpace(se.result.MemoriesText) != "" {
			memoryTexts = append(memoryTexts, se.result.MemoriesText)
		}
	}

	var newProfile []model.ProfileFact
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.embedChunks(gctx, allChunks) })
	g.Go(func() error { return o.embedFacts(gctx, allFacts) })
	g.Go(func() error {
		newProfile = profile.ParseMemoriesLines(strings.Join(memoryTexts, "\n"))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(allChunks) > 0 {
		if err := o.Backend.AddChunks(ctx, tag, allChunks); err != nil {
			return nil, err
		}
	}
	if len(allFacts) > 0 {
		if err := o.Backend.AddFacts(ctx, tag, allFacts); err != nil {
			return nil, err
		}
	}
	if len(newProfile) > 0 {
		if err := o.Backend.MergeProfile(ctx, tag, newProfile, profile.MergeProfiles); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(allChunks))
	for _, c := range allChunks {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (o *RelationalOrchestrator) embedChunks(ctx context.Context, chunks []model.Chunk) error {
	const batchSize = 100
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Content
		}
		vecs, err := embedding.EmbedWithRetry(ctx, o.Embedder, texts, sleepSeconds)
		if err != nil {
			return err
		}
		for i := start; i < end; i++ {
			chunks[i].Embedding = vecs[i-start]
		}
	}
	return nil
}

func (o *RelationalOrchestrator) embedFacts(ctx context.Context, facts []model.AtomicFact) error {
	if len(facts) == 0 {
		return nil
	}
	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Content
	}
	vecs, err := embedding.EmbedWithRetry(ctx, o.Embedder, texts, sleepSeconds)
	if err != nil {
		return err
	}
	for i := range facts {
		facts[i].Embedding = vecs[i]
	}
	return nil
}
