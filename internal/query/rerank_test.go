package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragmemory/internal/hybrid"
	"ragmemory/internal/model"
)

func TestOverfetchLimitDisabled(t *testing.T) {
	require.Equal(t, 5, overfetchLimit(5, 10, false))
}

func TestOverfetchLimitUsesConfiguredWhenLarger(t *testing.T) {
	require.Equal(t, 10, overfetchLimit(5, 10, true))
}

func TestOverfetchLimitFallsBackToLimit(t *testing.T) {
	require.Equal(t, 20, overfetchLimit(20, 10, true))
}

func TestTruncate(t *testing.T) {
	results := []hybrid.Result{{Chunk: model.Chunk{ID: "a"}}, {Chunk: model.Chunk{ID: "b"}}}
	require.Len(t, truncate(results, 1), 1)
	require.Len(t, truncate(results, 0), 2)
	require.Len(t, truncate(results, 5), 2)
}

func TestRerankMissingIndexDefaultsToZeroScore(t *testing.T) {
	results := []hybrid.Result{
		{Chunk: model.Chunk{ID: "a"}, Score: 0.1},
		{Chunk: model.Chunk{ID: "b"}, Score: 0.9},
	}
	llm := &fakeLLM{scores: []RerankScore{{Index: 1, Score: 0.7}}}

	out := rerank(context.Background(), llm, "query", results, 10)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].Chunk.ID)
	require.Equal(t, 0.7, out[0].Score)
	require.Equal(t, "a", out[1].Chunk.ID)
	require.Equal(t, 0.0, out[1].Score)
}

func TestRerankFailureKeepsOriginalOrder(t *testing.T) {
	results := []hybrid.Result{
		{Chunk: model.Chunk{ID: "a"}, Score: 0.9},
		{Chunk: model.Chunk{ID: "b"}, Score: 0.1},
	}
	llm := &fakeLLM{rerankErr: context.DeadlineExceeded}

	out := rerank(context.Background(), llm, "query", results, 10)
	require.Equal(t, "a", out[0].Chunk.ID)
	require.Equal(t, "b", out[1].Chunk.ID)
}

func TestRerankNilLLMIsIdentity(t *testing.T) {
	results := []hybrid.Result{{Chunk: model.Chunk{ID: "a"}, Score: 0.5}}
	out := rerank(context.Background(), nil, "query", results, 10)
	require.Equal(t, results, out)
}
