package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ragmemory/internal/model"
)

func TestTwoHopTraversal(t *testing.T) {
	g := NewGraph()
	g.AddEntity("alice", "person", "a user", "s1")
	g.AddEntity("google", "company", "a company", "s1")
	g.AddEntity("mountain_view", "place", "a city", "s1")

	g.AddRelationship(model.RelationshipEdge{Source: "alice", Relation: "works_at", Target: "google", SessionID: "s1"})
	g.AddRelationship(model.RelationshipEdge{Source: "google", Relation: "in", Target: "mountain_view", SessionID: "s1"})

	ctx := g.GetContext([]string{"alice"}, 2)

	names := map[string]bool{}
	for _, n := range ctx.Nodes {
		names[n.Name] = true
	}
	require.True(t, names["google"])
	require.True(t, names["mountain_view"])
	require.Len(t, ctx.Edges, 2)
}

func TestAddEntityMergesSummaryAndSessions(t *testing.T) {
	g := NewGraph()
	g.AddEntity("Alice", "person", "works at Google", "s1")
	g.AddEntity("alice", "person", "lives in Mountain View", "s2")

	node, ok := g.GetNode("alice")
	require.True(t, ok)
	require.Contains(t, node.Summary, "works at Google")
	require.Contains(t, node.Summary, "lives in Mountain View")
	require.True(t, node.SessionIDs["s1"])
	require.True(t, node.SessionIDs["s2"])
	require.Equal(t, "person", node.Type)
}

func TestRelationshipDedup(t *testing.T) {
	g := NewGraph()
	g.AddEntity("a", "x", "", "s1")
	g.AddEntity("b", "y", "", "s1")
	rel := model.RelationshipEdge{Source: "a", Relation: "knows", Target: "b", SessionID: "s1"}
	g.AddRelationship(rel)
	g.AddRelationship(rel)

	ctx := g.GetContext([]string{"a"}, 1)
	require.Len(t, ctx.Edges, 1)
}

func TestEveryEdgeEndpointExists(t *testing.T) {
	g := NewGraph()
	g.AddRelationship(model.RelationshipEdge{Source: "x", Relation: "rel", Target: "y", SessionID: "s1"})
	_, okX := g.GetNode("x")
	_, okY := g.GetNode("y")
	require.True(t, okX)
	require.True(t, okY)
}

func TestFindEntitiesInQuery(t *testing.T) {
	g := NewGraph()
	g.AddEntity("alice", "person", "", "s1")
	seeds := g.FindEntitiesInQuery("Tell me about Alice and her trip")
	require.Contains(t, seeds, "alice")
}

func TestClearEmptiesGraph(t *testing.T) {
	g := NewGraph()
	g.AddEntity("a", "x", "", "s1")
	g.Clear()
	_, ok := g.GetNode("a")
	require.False(t, ok)
}
