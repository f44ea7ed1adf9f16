// Package graph implements the per-container entity graph: a labeled
// directed multigraph supporting merge-on-ingest node/edge upserts and
// bounded breadth-first traversal over both out- and in-edges.
package graph

import (
	"sort"
	"strings"
	"sync"

	"ragmemory/internal/model"
	"ragmemory/internal/tokenize"
)

type edgeKey struct {
	source, relation, target, sessionID string
}

// Graph is the per-container entity graph.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*model.EntityNode
	edges map[edgeKey]model.RelationshipEdge
	// order preserves edge insertion order for deterministic snapshot output.
	edgeOrder []edgeKey
}

// NewGraph constructs an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*model.EntityNode),
		edges: make(map[edgeKey]model.RelationshipEdge),
	}
}

// Normalize lowercases and underscore-normalizes an entity name into its
// canonical graph key.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "_")
	return n
}

// AddEntity creates or merges a node. On merge: append the new summary to
// the existing one if it adds content, union session ids, keep the
// first-seen type.
func (g *Graph) AddEntity(name, typ, summary, sessionID string) {
	key := Normalize(name)
	if key == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[key]
	if !ok {
		g.nodes[key] = &model.EntityNode{
			Name:       key,
			Type:       typ,
			Summary:    strings.TrimSpace(summary),
			SessionIDs: map[string]bool{sessionID: true},
		}
		return
	}
	if summary != "" && !strings.Contains(existing.Summary, summary) {
		if existing.Summary == "" {
			existing.Summary = summary
		} else {
			existing.Summary = existing.Summary + " " + summary
		}
	}
	if existing.SessionIDs == nil {
		existing.SessionIDs = make(map[string]bool)
	}
	existing.SessionIDs[sessionID] = true
	// first-seen type is kept: existing.Type is left untouched.
}

// AddRelationship upserts an edge, deduplicated on
// (source, relation, target, sessionId). An endpoint that is not yet a
// node is created as a bare node (no type or summary) carrying the edge's
// sessionId.
func (g *Graph) AddRelationship(rel model.RelationshipEdge) {
	srcKey := Normalize(rel.Source)
	tgtKey := Normalize(rel.Target)
	if srcKey == "" || tgtKey == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[srcKey]; !ok {
		g.nodes[srcKey] = &model.EntityNode{Name: srcKey, SessionIDs: map[string]bool{rel.SessionID: true}}
	}
	if _, ok := g.nodes[tgtKey]; !ok {
		g.nodes[tgtKey] = &model.EntityNode{Name: tgtKey, SessionIDs: map[string]bool{rel.SessionID: true}}
	}

	k := edgeKey{source: srcKey, relation: rel.Relation, target: tgtKey, sessionID: rel.SessionID}
	if _, exists := g.edges[k]; exists {
		return
	}
	rel.Source = srcKey
	rel.Target = tgtKey
	g.edges[k] = rel
	g.edgeOrder = append(g.edgeOrder, k)
}

// GetNode returns the node for a normalized or raw name, if present.
func (g *Graph) GetNode(name string) (model.EntityNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[Normalize(name)]
	if !ok {
		return model.EntityNode{}, false
	}
	return *n, true
}

// Clear empties the graph.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*model.EntityNode)
	g.edges = make(map[edgeKey]model.RelationshipEdge)
	g.edgeOrder = nil
}

// FindEntitiesInQuery returns node names whose normalized form appears as
// a whitespace-delimited token or substring of the tokenized query.
func (g *Graph) FindEntitiesInQuery(text string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tokens := tokenize.Tokens(text)
	lowered := strings.ToLower(text)
	var seeds []string
	for name := range g.nodes {
		if tokenize.ContainsToken(tokens, name) || strings.Contains(lowered, strings.ReplaceAll(name, "_", " ")) {
			seeds = append(seeds, name)
		}
	}
	sort.Strings(seeds)
	return seeds
}

// Context is the result of a bounded BFS: every visited node and every
// edge that realized the traversal, deduplicated.
type Context struct {
	Nodes []model.EntityNode
	Edges []model.RelationshipEdge
}

// GetContext performs a breadth-first traversal from seeds bounded by
// maxHops, over both out- and in-edges, collecting all visited nodes and
// the edges that realized the traversal. Results are deduplicated by node
// name and by (source, relation, target).
func (g *Graph) GetContext(seeds []string, maxHops int) Context {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)
	var nodeOrder []string
	edgeSeen := make(map[[3]string]bool)
	var edgeOrder []model.RelationshipEdge

	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		key := Normalize(s)
		if _, ok := g.nodes[key]; !ok {
			continue
		}
		if !visited[key] {
			visited[key] = true
			nodeOrder = append(nodeOrder, key)
		}
		frontier = append(frontier, key)
	}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, k := range frontier {
			for _, ek := range g.edgeOrder {
				edge := g.edges[ek]
				var neighbor string
				switch {
				case ek.source == k:
					neighbor = ek.target
				case ek.target == k:
					neighbor = ek.source
				default:
					continue
				}
				triple := [3]string{edge.Source, edge.Relation, edge.Target}
				if !edgeSeen[triple] {
					edgeSeen[triple] = true
					edgeOrder = append(edgeOrder, edge)
				}
				if !visited[neighbor] {
					visited[neighbor] = true
					nodeOrder = append(nodeOrder, neighbor)
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	nodes := make([]model.EntityNode, 0, len(nodeOrder))
	for _, name := range nodeOrder {
		if n, ok := g.nodes[name]; ok {
			nodes = append(nodes, *n)
		}
	}
	return Context{Nodes: nodes, Edges: edgeOrder}
}

// Save returns a JSON-serializable snapshot of the graph.
func (g *Graph) Save() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]model.EntityNode, 0, len(g.nodes))
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		nodes = append(nodes, *g.nodes[name])
	}
	edges := make([]model.RelationshipEdge, 0, len(g.edgeOrder))
	for _, k := range g.edgeOrder {
		edges = append(edges, g.edges[k])
	}
	return Snapshot{Version: 1, Nodes: nodes, Edges: edges}
}

// Load replaces the graph's contents with the given snapshot.
func (g *Graph) Load(snap Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*model.EntityNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		node := n
		if node.SessionIDs == nil {
			node.SessionIDs = make(map[string]bool)
		}
		g.nodes[node.Name] = &node
	}
	g.edges = make(map[edgeKey]model.RelationshipEdge, len(snap.Edges))
	g.edgeOrder = nil
	for _, e := range snap.Edges {
		k := edgeKey{source: e.Source, relation: e.Relation, target: e.Target, sessionID: e.SessionID}
		g.edges[k] = e
		g.edgeOrder = append(g.edgeOrder, k)
	}
}

// Snapshot is the on-disk representation of a Graph (graph.json).
type Snapshot struct {
	Version int                      `json:"version"`
	Nodes   []model.EntityNode       `json:"nodes"`
	Edges   []model.RelationshipEdge `json:"edges"`
}
