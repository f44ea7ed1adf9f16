package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExtractionValidJSON(t *testing.T) {
	raw := `{"memoriesText":"Lives in Berlin.\nWorks as an engineer.","entities":[{"name":"alice","type":"person","summary":"a user"}],"relationships":[{"source":"alice","relation":"works_at","target":"acme"}]}`
	result, err := ParseExtraction(raw)
	require.NoError(t, err)
	require.Contains(t, result.MemoriesText, "Lives in Berlin.")
	require.Len(t, result.Entities, 1)
	require.Equal(t, "alice", result.Entities[0].Name)
	require.Len(t, result.Relationships, 1)
	require.Equal(t, "acme", result.Relationships[0].Target)
}

func TestParseExtractionStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"memoriesText\":\"Has a cat.\",\"entities\":[],\"relationships\":[]}\n```"
	result, err := ParseExtraction(raw)
	require.NoError(t, err)
	require.Equal(t, "Has a cat.", result.MemoriesText)
}

func TestParseExtractionFallsBackOnInvalidJSON(t *testing.T) {
	raw := "The user mentioned they enjoy hiking on weekends."
	result, err := ParseExtraction(raw)
	require.NoError(t, err)
	require.Equal(t, raw, result.MemoriesText)
	require.Empty(t, result.Entities)
	require.Empty(t, result.Relationships)
}

func TestStripCodeFenceNoFence(t *testing.T) {
	require.Equal(t, "plain text", stripCodeFence("plain text"))
}
