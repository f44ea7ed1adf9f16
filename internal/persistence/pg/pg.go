// Package pg is the optional relational backend: when DATABASE_URL is
// set, it replaces the in-memory hybrid/facts/graph/profile indices with
// tables in a single Postgres database (pgvector extension required for
// the vector columns), and container snapshots are skipped entirely since
// Postgres is itself the durable store. The schema is a single set of
// per-container chunks/facts/graph_nodes/graph_edges/profile_records
// tables, all keyed by container_tag so one schema serves every
// container. BM25 is computed in-process over the fetched candidate chunks
// (see Search, via bm25.Index.RawScores) rather than in SQL, since Postgres has no
// built-in BM25 scorer with caller-controlled k1/b.
package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"ragmemory/internal/bm25"
	"ragmemory/internal/errs"
	"ragmemory/internal/facts"
	"ragmemory/internal/graph"
	"ragmemory/internal/hybrid"
	"ragmemory/internal/model"
	"ragmemory/internal/tokenize"
)

// Backend owns a pgxpool.Pool and implements the same narrow operations
// as the in-memory hybrid/facts/graph/profile packages, so
// internal/query and internal/ingest can branch once on which backend is
// active and otherwise stay oblivious to which one it is.
type Backend struct {
	pool *pgxpool.Pool
	dim  int
}

// New connects to databaseURL and ensures the schema exists.
func New(ctx context.Context, databaseURL string, dim int) (*Backend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalUnavailable, "pg: failed to connect", err)
	}
	b := &Backend{pool: pool, dim: dim}
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Close releases the connection pool.
func (b *Backend) Close() { b.pool.Close() }

func (b *Backend) ensureSchema(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "pg: failed to create vector extension", err)
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			container_tag TEXT NOT NULL,
			session_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			date TEXT,
			event_date TEXT,
			embedding vector(%d)
		)`, b.dim),
		`CREATE INDEX IF NOT EXISTS chunks_tag_idx ON chunks (container_tag)`,
		`CREATE INDEX IF NOT EXISTS chunks_session_idx ON chunks (container_tag, session_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_embedding_ivfflat ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			container_tag TEXT NOT NULL,
			session_id TEXT NOT NULL,
			fact_index INT NOT NULL,
			content TEXT NOT NULL,
			date TEXT,
			event_date TEXT,
			embedding vector(%d)
		)`, b.dim),
		`CREATE INDEX IF NOT EXISTS facts_tag_idx ON facts (container_tag)`,
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			container_tag TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT,
			summary TEXT,
			session_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
			PRIMARY KEY (container_tag, name)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			container_tag TEXT NOT NULL,
			source TEXT NOT NULL,
			relation TEXT NOT NULL,
			target TEXT NOT NULL,
			date TEXT,
			session_id TEXT NOT NULL,
			PRIMARY KEY (container_tag, source, relation, target, session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS profile_records (
			container_tag TEXT PRIMARY KEY,
			facts JSONB NOT NULL DEFAULT '[]'::jsonb
		)`,
	}
	for _, s := range stmts {
		if _, err := b.pool.Exec(ctx, s); err != nil {
			return errs.Wrap(errs.ExternalUnavailable, "pg: schema migration failed", err)
		}
	}
	return nil
}

// AddChunks upserts chunks for tag.
func (b *Backend) AddChunks(ctx context.Context, tag string, chunks []model.Chunk) error {
	for _, c := range chunks {
		_, err := b.pool.Exec(ctx, `
			INSERT INTO chunks (id, container_tag, session_id, chunk_index, content, date, event_date, embedding)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET content=EXCLUDED.content, date=EXCLUDED.date,
				event_date=EXCLUDED.event_date, embedding=EXCLUDED.embedding
		`, c.ID, tag, c.SessionID, c.ChunkIndex, c.Content, c.Date, c.EventDate, pgvector.NewVector(c.Embedding))
		if err != nil {
			return errs.Wrap(errs.ExternalUnavailable, "pg: AddChunks failed", err)
		}
	}
	return nil
}

// GetChunksBySession returns every chunk for (tag, sessionID), ordered by
// chunk index.
func (b *Backend) GetChunksBySession(ctx context.Context, tag, sessionID string) ([]model.Chunk, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, content, session_id, chunk_index, date, event_date
		FROM chunks WHERE container_tag=$1 AND session_id=$2 ORDER BY chunk_index
	`, tag, sessionID)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalUnavailable, "pg: GetChunksBySession failed", err)
	}
	defer rows.Close()
	var out []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.Content, &c.SessionID, &c.ChunkIndex, &c.Date, &c.EventDate); err != nil {
			return nil, errs.Wrap(errs.ExternalUnavailable, "pg: scan failed", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Search runs the same weighted hybrid fusion as internal/hybrid, with
// the dense half scored in SQL (pgvector cosine distance) and the sparse
// half scored in-process against a fetched candidate set, since Postgres
// offers no caller-tunable BM25 scorer. The candidate pool for min-max
// normalization is every chunk in the container — for the data volumes
// this engine targets (commodity hardware, a single container's
// conversational history) that's a bounded, inexpensive fetch.
func (b *Backend) Search(ctx context.Context, tag string, queryEmbedding []float32, rawQuery string, k int) ([]hybrid.Result, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, content, session_id, chunk_index, date, event_date,
			1 - (embedding <=> $2::vector) AS cos
		FROM chunks WHERE container_tag=$1
	`, tag, pgvector.NewVector(queryEmbedding))
	if err != nil {
		return nil, errs.Wrap(errs.ExternalUnavailable, "pg: Search failed", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	vecScores := make(map[string]float64)
	textIdx := bm25.NewIndex()
	for rows.Next() {
		var c model.Chunk
		var cos float64
		if err := rows.Scan(&c.ID, &c.Content, &c.SessionID, &c.ChunkIndex, &c.Date, &c.EventDate, &cos); err != nil {
			return nil, errs.Wrap(errs.ExternalUnavailable, "pg: scan failed", err)
		}
		chunks = append(chunks, c)
		vecScores[c.ID] = clamp(cos, -1, 1)
		textIdx.Add(c.ID, c.Content)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	vn := bm25.MinMaxNormalize(vecScores)
	bn := bm25.MinMaxNormalize(textIdx.RawScores(rawQuery))

	results := make([]hybrid.Result, 0, len(chunks))
	for _, c := range chunks {
		vs, bs := vn[c.ID], bn[c.ID]
		results = append(results, hybrid.Result{
			Chunk:       c,
			Score:       0.7*vs + 0.3*bs,
			VectorScore: vs,
			BM25Score:   bs,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].VectorScore != results[j].VectorScore {
			return results[i].VectorScore > results[j].VectorScore
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Clear drops every row belonging to tag across all five tables.
func (b *Backend) Clear(ctx context.Context, tag string) error {
	tables := []string{"chunks", "facts", "graph_nodes", "graph_edges", "profile_records"}
	for _, t := range tables {
		col := "container_tag"
		if _, err := b.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s=$1", t, col), tag); err != nil {
			return errs.Wrap(errs.ExternalUnavailable, "pg: Clear failed on "+t, err)
		}
	}
	return nil
}

// ListTags returns every distinct container tag with at least one chunk,
// fact, graph node, or profile record, for the HTTP surface's GET
// /containers.
func (b *Backend) ListTags(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT container_tag FROM chunks
		UNION SELECT container_tag FROM facts
		UNION SELECT container_tag FROM graph_nodes
		UNION SELECT container_tag FROM profile_records
		ORDER BY container_tag`)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalUnavailable, "pg: ListTags failed", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, errs.Wrap(errs.ExternalUnavailable, "pg: ListTags scan failed", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// AddFacts upserts atomic facts for tag.
func (b *Backend) AddFacts(ctx context.Context, tag string, facts []model.AtomicFact) error {
	for _, f := range facts {
		_, err := b.pool.Exec(ctx, `
			INSERT INTO facts (id, container_tag, session_id, fact_index, content, date, event_date, embedding)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET content=EXCLUDED.content, embedding=EXCLUDED.embedding
		`, f.ID, tag, f.SessionID, f.FactIndex, f.Content, f.Date, f.EventDate, pgvector.NewVector(f.Embedding))
		if err != nil {
			return errs.Wrap(errs.ExternalUnavailable, "pg: AddFacts failed", err)
		}
	}
	return nil
}

// SearchFacts returns the top limit facts for tag by cosine similarity.
func (b *Backend) SearchFacts(ctx context.Context, tag string, queryEmbedding []float32, limit int) ([]facts.Result, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, content, session_id, fact_index, date, event_date, 1 - (embedding <=> $2::vector) AS cos
		FROM facts WHERE container_tag=$1 ORDER BY embedding <=> $2::vector LIMIT $3
	`, tag, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalUnavailable, "pg: SearchFacts failed", err)
	}
	defer rows.Close()
	var out []facts.Result
	for rows.Next() {
		var f model.AtomicFact
		var cos float64
		if err := rows.Scan(&f.ID, &f.Content, &f.SessionID, &f.FactIndex, &f.Date, &f.EventDate, &cos); err != nil {
			return nil, errs.Wrap(errs.ExternalUnavailable, "pg: scan failed", err)
		}
		out = append(out, facts.Result{Fact: f, Score: clamp(cos, -1, 1)})
	}
	return out, nil
}

// AddEntity upserts a graph node, merging summary/sessionIds the same way
// internal/graph.Graph.AddEntity does.
func (b *Backend) AddEntity(ctx context.Context, tag, name, typ, summary, sessionID string) error {
	key := graph.Normalize(name)
	if key == "" {
		return nil
	}
	_, err := b.pool.Exec(ctx, `
		INSERT INTO graph_nodes (container_tag, name, type, summary, session_ids)
		VALUES ($1, $2, $3, $4, jsonb_build_array($5::text))
		ON CONFLICT (container_tag, name) DO UPDATE SET
			summary = CASE WHEN $4 = '' OR graph_nodes.summary LIKE '%' || $4 || '%'
				THEN graph_nodes.summary
				ELSE trim(graph_nodes.summary || ' ' || $4) END,
			session_ids = (
				SELECT jsonb_agg(DISTINCT v) FROM jsonb_array_elements_text(
					graph_nodes.session_ids || jsonb_build_array($5::text)
				) v
			)
	`, tag, key, typ, summary, sessionID)
	if err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "pg: AddEntity failed", err)
	}
	return nil
}

// AddRelationship upserts an edge, deduplicated on its primary key
// (container_tag, source, relation, target, session_id).
func (b *Backend) AddRelationship(ctx context.Context, tag string, rel model.RelationshipEdge) error {
	src, tgt := graph.Normalize(rel.Source), graph.Normalize(rel.Target)
	if src == "" || tgt == "" {
		return nil
	}
	for _, n := range []string{src, tgt} {
		if err := b.ensureNode(ctx, tag, n, rel.SessionID); err != nil {
			return err
		}
	}
	_, err := b.pool.Exec(ctx, `
		INSERT INTO graph_edges (container_tag, source, relation, target, date, session_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT DO NOTHING
	`, tag, src, rel.Relation, tgt, rel.Date, rel.SessionID)
	if err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "pg: AddRelationship failed", err)
	}
	return nil
}

func (b *Backend) ensureNode(ctx context.Context, tag, name, sessionID string) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO graph_nodes (container_tag, name, session_ids)
		VALUES ($1, $2, jsonb_build_array($3::text))
		ON CONFLICT (container_tag, name) DO NOTHING
	`, tag, name, sessionID)
	return err
}

// FindEntitiesInQuery mirrors graph.Graph.FindEntitiesInQuery, fetching
// every node name for tag and matching in-process (the node set per
// container is small; a SQL full-text match would add complexity without
// a measurable win at this scale).
func (b *Backend) FindEntitiesInQuery(ctx context.Context, tag, text string) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT name FROM graph_nodes WHERE container_tag=$1`, tag)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalUnavailable, "pg: FindEntitiesInQuery failed", err)
	}
	defer rows.Close()
	tokens := tokenize.Tokens(text)
	lowered := strings.ToLower(text)
	var seeds []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if tokenize.ContainsToken(tokens, name) || strings.Contains(lowered, strings.ReplaceAll(name, "_", " ")) {
			seeds = append(seeds, name)
		}
	}
	sort.Strings(seeds)
	return seeds, nil
}

// GetContext performs the same bounded BFS as graph.Graph.GetContext, over
// nodes/edges loaded into an in-memory graph.Graph for the duration of
// the call — the per-container graph is small enough that round-tripping
// it through the same BFS implementation used by the in-memory backend
// keeps the two backends' traversal semantics identical by construction.
func (b *Backend) GetContext(ctx context.Context, tag string, seeds []string, maxHops int) (graph.Context, error) {
	g := graph.NewGraph()

	nodeRows, err := b.pool.Query(ctx, `SELECT name, type, summary, session_ids FROM graph_nodes WHERE container_tag=$1`, tag)
	if err != nil {
		return graph.Context{}, errs.Wrap(errs.ExternalUnavailable, "pg: GetContext node fetch failed", err)
	}
	for nodeRows.Next() {
		var name, typ, summary string
		var sessionIDs []string
		if err := nodeRows.Scan(&name, &typ, &summary, &sessionIDs); err != nil {
			nodeRows.Close()
			return graph.Context{}, err
		}
		for _, sid := range sessionIDs {
			g.AddEntity(name, typ, "", sid)
		}
		if summary != "" {
			g.AddEntity(name, typ, summary, "")
		}
	}
	nodeRows.Close()

	edgeRows, err := b.pool.Query(ctx, `SELECT source, relation, target, date, session_id FROM graph_edges WHERE container_tag=$1`, tag)
	if err != nil {
		return graph.Context{}, errs.Wrap(errs.ExternalUnavailable, "pg: GetContext edge fetch failed", err)
	}
	for edgeRows.Next() {
		var e model.RelationshipEdge
		if err := edgeRows.Scan(&e.Source, &e.Relation, &e.Target, &e.Date, &e.SessionID); err != nil {
			edgeRows.Close()
			return graph.Context{}, err
		}
		g.AddRelationship(e)
	}
	edgeRows.Close()

	return g.GetContext(seeds, maxHops), nil
}

// MergeProfile loads tag's profile, merges incoming via the shared
// MergeProfiles rule, and stores the result back.
func (b *Backend) MergeProfile(ctx context.Context, tag string, incoming []model.ProfileFact, merge func(existing, incoming []model.ProfileFact) []model.ProfileFact) error {
	existing, err := b.GetProfile(ctx, tag)
	if err != nil {
		return err
	}
	merged := merge(existing, incoming)
	data, err := marshalFacts(merged)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO profile_records (container_tag, facts) VALUES ($1, $2)
		ON CONFLICT (container_tag) DO UPDATE SET facts=EXCLUDED.facts
	`, tag, data)
	if err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "pg: MergeProfile failed", err)
	}
	return nil
}

// GetProfile returns tag's current profile facts.
func (b *Backend) GetProfile(ctx context.Context, tag string) ([]model.ProfileFact, error) {
	var data []byte
	err := b.pool.QueryRow(ctx, `SELECT facts FROM profile_records WHERE container_tag=$1`, tag).Scan(&data)
	if err != nil {
		return nil, nil // no row yet: empty profile
	}
	return unmarshalFacts(data)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func marshalFacts(facts []model.ProfileFact) ([]byte, error) {
	return json.Marshal(facts)
}

func unmarshalFacts(data []byte) ([]model.ProfileFact, error) {
	var out []model.ProfileFact
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errs.Corrupt("pg: profile facts failed to parse", err)
	}
	return out, nil
}
