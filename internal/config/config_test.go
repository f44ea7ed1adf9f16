package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RAG_PORT", "")
	t.Setenv("RAG_CACHE_DIR", "")
	t.Setenv("RAG_CHUNK_SIZE", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3847, cfg.Port)
	require.Equal(t, "./data/cache/rag", cfg.CacheDir)
	require.Equal(t, 1600, cfg.ChunkSize)
	require.Equal(t, 320, cfg.ChunkOverlap)
	require.Equal(t, "text-embedding-3-large", cfg.EmbeddingModel)
	require.Equal(t, 10, cfg.RerankOverfetch)
	require.Equal(t, 300, cfg.ExtractorConcurrency)
	require.Equal(t, 0.1, cfg.SessionBoost)
	require.True(t, cfg.GraphEnabled)
	require.True(t, cfg.DecomposeEnabled)
	require.False(t, cfg.RerankerEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RAG_PORT", "9999")
	t.Setenv("RAG_RERANKER", "true")
	t.Setenv("RAG_SESSION_BOOST", "0.25")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Port)
	require.True(t, cfg.RerankerEnabled)
	require.Equal(t, 0.25, cfg.SessionBoost)
}
