package hybrid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ragmemory/internal/model"
)

func chunk(id, sessionID, content string, idx int, embedding []float32) model.Chunk {
	return model.Chunk{ID: id, SessionID: sessionID, Content: content, ChunkIndex: idx, Embedding: embedding}
}

func TestSearchEmptyEngineReturnsNil(t *testing.T) {
	e := NewEngine(3)
	require.Nil(t, e.Search([]float32{1, 0, 0}, "hello", 10))
}

func TestSearchFindsBM25Match(t *testing.T) {
	e := NewEngine(3)
	e.AddChunks([]model.Chunk{
		chunk("a", "s1", "Python tutorial for beginners", 0, []float32{1, 0, 0}),
		chunk("b", "s1", "JavaScript guide for web developers", 1, []float32{0, 1, 0}),
		chunk("c", "s1", "Python machine learning basics", 2, []float32{0, 0, 1}),
	})

	results := e.Search([]float32{0.1, 0.1, 0.1}, "Python", 5)
	require.NotEmpty(t, results)

	found := false
	for _, r := range results[:min(5, len(results))] {
		if r.Chunk.ID == "a" || r.Chunk.ID == "c" {
			found = true
		}
	}
	require.True(t, found, "expected a Python chunk in results")
}

func TestScoreBoundsAndTieBreak(t *testing.T) {
	e := NewEngine(2)
	e.AddChunks([]model.Chunk{
		chunk("z", "s1", "same text", 0, []float32{1, 0}),
		chunk("a", "s1", "same text", 1, []float32{1, 0}),
	})
	results := e.Search([]float32{1, 0}, "same text", 10)
	require.Len(t, results, 2)
	for _, r := range results {
		require.GreaterOrEqual(t, r.Score, 0.0)
		require.LessOrEqual(t, r.Score, 1.0)
		require.GreaterOrEqual(t, r.VectorScore, -1.0)
		require.LessOrEqual(t, r.VectorScore, 1.0)
	}
	// identical scores -> tie break by id ascending
	require.Equal(t, "a", results[0].Chunk.ID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	e := NewEngine(2)
	e.AddChunks([]model.Chunk{
		chunk("a", "s1", "hello world", 0, []float32{0.5, 0.5}),
	})
	snap := e.Save()

	e2 := NewEngine(2)
	e2.Load(snap)
	require.True(t, e2.HasData())
	require.Equal(t, e.GetChunksBySession("s1"), e2.GetChunksBySession("s1"))
}

func TestClear(t *testing.T) {
	e := NewEngine(2)
	e.AddChunks([]model.Chunk{chunk("a", "s1", "x", 0, []float32{1, 0})})
	require.True(t, e.HasData())
	e.Clear()
	require.False(t, e.HasData())
	require.Nil(t, e.Search([]float32{1, 0}, "x", 10))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
