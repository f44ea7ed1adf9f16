// Package ingest implements the per-container ingest orchestrator:
// batch extraction under a global semaphore, graph commit, chunk/fact
// construction, batched embedding with retry, parallel profile merge, and
// a final writer-lock commit followed by a disk snapshot. Each stage is
// logged, so a slow or failing ingest shows which step it stalled in.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ragmemory/internal/chunker"
	"ragmemory/internal/container"
	"ragmemory/internal/embedding"
	"ragmemory/internal/extractor"
	"ragmemory/internal/logging"
	"ragmemory/internal/model"
	"ragmemory/internal/profile"
)

// Orchestrator drives ingest for one call across however many sessions are
// supplied, all destined for a single container.
type Orchestrator struct {
	Extractor   extractor.Extractor
	Embedder    embedding.Embedder
	Registry    *container.Registry
	Snapshotter Snapshotter

	ChunkSize    int
	ChunkOverlap int
	BatchSize    int // sessions per extraction batch, default 10

	sem *semaphore.Weighted
}

// Snapshotter persists a container's full state to disk after a
// successful commit. The in-memory backend implements this;
// RelationalOrchestrator has no Snapshotter, since Postgres is the
// durable store there.
type Snapshotter interface {
	Snapshot(ctx context.Context, tag string, c *container.Container) error
}

// New constructs an Orchestrator. extractConcurrency bounds the number of
// in-flight extractor calls across the whole process.
func New(ex extractor.Extractor, emb embedding.Embedder, reg *container.Registry, snap Snapshotter, chunkSize, chunkOverlap, batchSize, extractConcurrency int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 10
	}
	if extractConcurrency <= 0 {
		extractConcurrency = 300
	}
	return &Orchestrator{
		Extractor:    ex,
		Embedder:     emb,
		Registry:     reg,
		Snapshotter:  snap,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		BatchSize:    batchSize,
		sem:          semaphore.NewWeighted(int64(extractConcurrency)),
	}
}

type sessionExtraction struct {
	session model.Session
	result  model.ExtractResult
	err     error
}

// Ingest runs the full orchestrator algorithm for tag and returns the ids
// of newly created chunks. A single session's extraction failure is
// logged and that session is skipped; other sessions proceed.
func (o *Orchestrator) Ingest(ctx context.Context, tag string, sessions []model.Session) ([]string, error) {
	c, err := o.Registry.GetOrCreate(ctx, tag)
	if err != nil {
		return nil, err
	}

	extracted := o.extractAll(ctx, sessions)

	// Step 2: commit entities/relationships to the graph under the writer lock.
	c.Lock()
	for _, se := range extracted {
		if se.err != nil {
			continue
		}
		for _, e := range se.result.Entities {
			c.Graph.AddEntity(e.Name, e.Type, e.Summary, se.session.SessionID)
		}
		for _, r := range se.result.Relationships {
			c.Graph.AddRelationship(model.RelationshipEdge{
				Source: r.Source, Relation: r.Relation, Target: r.Target,
				Date: r.Date, SessionID: se.session.SessionID,
			})
		}
	}
	c.Unlock()

	// Step 3: construct chunks and raw facts.
	var allChunks []model.Chunk
	var allFacts []model.AtomicFact
	var memoryTexts []string
	for _, se := range extracted {
		if se.err != nil {
			continue
		}
		date := se.session.Date
		header := fmt.Sprintf("# Memories from %s\n\n", date)
		chunks := chunker.Split(header+se.result.MemoriesText, o.ChunkSize, o.ChunkOverlap)
		for i, content := range chunks {
			allChunks = append(allChunks, model.Chunk{
				ID:         ChunkID(tag, se.session.SessionID, i),
				Content:    content,
				SessionID:  se.session.SessionID,
				ChunkIndex: i,
				Date:       date,
			})
		}
		factIdx := 0
		for _, line := range strings.Split(se.result.MemoriesText, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			allFacts = append(allFacts, model.AtomicFact{
				ID:        FactID(tag, se.session.SessionID, factIdx),
				Content:   line,
				SessionID: se.session.SessionID,
				FactIndex: factIdx,
				Date:      date,
			})
			factIdx++
		}
		if strings.TrimSpace(se.result.MemoriesText) != "" {
			memoryTexts = append(memoryTexts, se.result.MemoriesText)
		}
	}

	// Step 4: embed chunks and facts in parallel; merge profile in parallel too.
	var newProfile []model.ProfileFact
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.embedChunks(gctx, allChunks)
	})
	g.Go(func() error {
		return o.embedFacts(gctx, allFacts)
	})
	g.Go(func() error {
		newProfile = profile.ParseMemoriesLines(strings.Join(memoryTexts, "\n"))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 5: commit chunks/facts/profile under the writer lock.
	c.Lock()
	c.Hybrid.AddChunks(allChunks)
	c.Facts.AddFacts(allFacts)
	c.Profile.Merge(newProfile)
	c.MarkLoaded()
	c.Unlock()

	// Step 6: snapshot to disk.
	if o.Snapshotter != nil {
		if err := o.Snapshotter.Snapshot(ctx, tag, c); err != nil {
			logging.Log.Warnf("ingest: snapshot for container %s failed: %v", tag, err)
		}
	}

	ids := make([]string, 0, len(allChunks))
	for _, ch := range allChunks {
		ids = append(ids, ch.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// extractAll partitions sessions into fixed-size batches and extracts
// each session under the global semaphore, in parallel within a batch.
func (o *Orchestrator) extractAll(ctx context.Context, sessions []model.Session) []sessionExtraction {
	out := make([]sessionExtraction, len(sessions))
	for start := 0; start < len(sessions); start += o.BatchSize {
		end := start + o.BatchSize
		if end > len(sessions) {
			end = len(sessions)
		}
		batch := sessions[start:end]

		var wg sync.WaitGroup
		for i, sess := range batch {
			idx := start + i
			wg.Add(1)
			go func(idx int, sess model.Session) {
				defer wg.Done()
				if err := o.sem.Acquire(ctx, 1); err != nil {
					out[idx] = sessionExtraction{session: sess, err: err}
					return
				}
				defer o.sem.Release(1)

				result, err := o.Extractor.Extract(ctx, sess)
				if err != nil {
					logging.Log.Warnf("ingest: extraction failed for session %s: %v", sess.SessionID, err)
				}
				out[idx] = sessionExtraction{session: sess, result: result, err: err}
			}(idx, sess)
		}
		wg.Wait()
	}
	return out
}

// embedChunks embeds allChunks in batches of 100, retrying each batch up
// to twice with 1s/2s backoff, and writes the resulting vectors back into
// the chunk slice in place.
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []model.Chunk) error {
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

// embedFacts embeds allFacts in a single batch (facts are short lines, so
// batching further is unnecessary in practice), retrying as above.
func (o *Orchestrator) embedFacts(ctx context.Context, facts []model.AtomicFact) error {
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

// ChunkID is a pure function of (containerTag, sessionId, chunkIndex).
func ChunkID(tag, sessionID string, index int) string {
	return fmt.Sprintf("%s_%s_%d", tag, sessionID, index)
}

// FactID mirrors ChunkID's shape for atomic facts.
func FactID(tag, sessionID string, index int) string {
	return fmt.Sprintf("%s_%s_fact_%d", tag, sessionID, index)
}
