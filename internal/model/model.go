// Package model holds the data types shared across the retrieval engine's
// components: sessions, chunks, atomic facts, graph nodes/edges, and
// profile records.
package model

// Message is a single conversational turn supplied at ingest time.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a batch of conversational turns to be ingested into one
// container. SessionID is stable across re-ingest: ingesting the same id
// twice is idempotent at the session level.
type Session struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
	Date      string    `json:"date,omitempty"` // YYYY-MM-DD
}

// Chunk is an overlapping passage of rendered session text plus its dense
// embedding. ID is a pure function of (containerTag, sessionId, chunkIndex).
type Chunk struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	SessionID  string         `json:"sessionId"`
	ChunkIndex int            `json:"chunkIndex"`
	Date       string         `json:"date,omitempty"`
	EventDate  string         `json:"eventDate,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AtomicFact is a short extracted statement, embedded and searchable
// independently of its parent chunk. Parent chunks are found at query time
// by substring containment, never by a persisted foreign key.
type AtomicFact struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SessionID string    `json:"sessionId"`
	FactIndex int       `json:"factIndex"`
	Date      string    `json:"date,omitempty"`
	EventDate string    `json:"eventDate,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// EntityNode is a node in the per-container entity graph, keyed by its
// normalized Name.
type EntityNode struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Summary    string          `json:"summary"`
	SessionIDs map[string]bool `json:"sessionIds"`
}

// RelationshipEdge is a labeled directed edge between two entity nodes.
type RelationshipEdge struct {
	Source    string `json:"source"`
	Relation  string `json:"relation"`
	Target    string `json:"target"`
	Date      string `json:"date,omitempty"`
	SessionID string `json:"sessionId"`
}

// ProfileFact is one short biographical statement held by the profile
// store.
type ProfileFact struct {
	Content string `json:"content"`
}

// ExtractedEntity and ExtractedRelationship are the structured-extraction
// outputs an Extractor produces alongside memoriesText.
type ExtractedEntity struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

type ExtractedRelationship struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
	Date     string `json:"date,omitempty"`
}

// ExtractResult is the parsed output of an Extractor call for one session.
type ExtractResult struct {
	MemoriesText  string
	Entities      []ExtractedEntity
	Relationships []ExtractedRelationship
}

// SearchResultType discriminates the heterogeneous result entries a query
// can return: a matched chunk, an entity graph node, a relationship edge,
// or a profile fact.
type SearchResultType string

const (
	ResultChunk        SearchResultType = "chunk"
	ResultEntity       SearchResultType = "entity"
	ResultRelationship SearchResultType = "relationship"
	ResultProfile      SearchResultType = "profile"
)

// SearchResult is one entry of a query's result set. Only the field named
// by Type is populated; the others are left zero-valued. A single tagged
// array lets the HTTP surface return chunks, graph context, and profile
// facts in one ordered response without four parallel arrays.
type SearchResult struct {
	Type         SearchResultType  `json:"type"`
	Score        float64           `json:"score,omitempty"`
	Chunk        *Chunk            `json:"chunk,omitempty"`
	Entity       *EntityNode       `json:"entity,omitempty"`
	Relationship *RelationshipEdge `json:"relationship,omitempty"`
	Profile      *ProfileFact      `json:"profile,omitempty"`
}
