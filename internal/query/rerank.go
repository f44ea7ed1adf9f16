// rerank.go implements the optional LLM-based reranking pass: overfetch
// candidates, ask the LLM to score them, re-sort by that score, and
// truncate to the requested limit.
package query

import (
	"context"
	"sort"

	"ragmemory/internal/hybrid"
	"ragmemory/internal/logging"
)

// rerank scores each of results against query using llm, re-sorts
// descending by the LLM's score, and truncates to limit. Any candidate
// index missing from the LLM's response defaults to score 0. On LLM
// failure the original ordering and scores are returned unchanged
// (identity fallback).
func rerank(ctx context.Context, llm LLM, query string, results []hybrid.Result, limit int) []hybrid.Result {
	if len(results) == 0 || llm == nil {
		return truncate(results, limit)
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Chunk.Content
	}

	scores, err := llm.Rerank(ctx, query, docs)
	if err != nil {
		logging.Log.Warnf("query: rerank failed, keeping hybrid order: %v", err)
		return truncate(results, limit)
	}

	byIndex := make(map[int]float64, len(scores))
	for _, s := range scores {
		byIndex[s.Index] = s.Score
	}

	reranked := make([]hybrid.Result, len(results))
	copy(reranked, results)
	for i := range reranked {
		reranked[i].Score = byIndex[i] // 0 if the LLM omitted this index
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].Score != reranked[j].Score {
			return reranked[i].Score > reranked[j].Score
		}
		return reranked[i].Chunk.ID < reranked[j].Chunk.ID
	})
	return truncate(reranked, limit)
}

func truncate(results []hybrid.Result, limit int) []hybrid.Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// overfetchLimit returns how many candidates the pipeline should ask the
// hybrid engine for: just limit when reranking is disabled, or
// max(limit, configuredOverfetch) candidates in total for the reranker to
// choose among otherwise.
func overfetchLimit(limit, configuredOverfetch int, rerankerEnabled bool) int {
	if !rerankerEnabled {
		return limit
	}
	if configuredOverfetch > limit {
		return configuredOverfetch
	}
	return limit
}
