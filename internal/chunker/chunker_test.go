package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFitsInOneChunk(t *testing.T) {
	text := strings.Repeat("a", 100)
	chunks := Split(text, 100, 20)
	require.Len(t, chunks, 1)
	require.Equal(t, text, chunks[0])
}

func TestSplitExactBoundaryYieldsOneChunk(t *testing.T) {
	text := strings.Repeat("x", 50)
	chunks := Split(text, 50, 10)
	require.Len(t, chunks, 1)
}

func TestSplitOneOverBoundaryYieldsTwoChunks(t *testing.T) {
	text := strings.Repeat("x", 51)
	chunks := Split(text, 50, 10)
	require.Len(t, chunks, 2)
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	text := "This is the first sentence of the passage. This is the second sentence that follows after it and runs on a while longer to pad length."
	chunks := Split(text, 60, 10)
	require.NotEmpty(t, chunks)
	require.True(t, strings.HasSuffix(chunks[0], "."), "expected first chunk to end at a sentence boundary, got %q", chunks[0])
}

func TestSplitOverlapInvariant(t *testing.T) {
	text := strings.Repeat("word ", 200)
	chunks := Split(text, 100, 20)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		require.NotEmpty(t, chunks[i])
	}
	// Adjacent chunks share text, so together they are longer than the
	// input they were cut from (13 chunks here: 12*99 + 39 = 1227 > 999).
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	require.Greater(t, total, len(strings.TrimSpace(text)))
}

func TestSplitEmptyReturnsNil(t *testing.T) {
	require.Nil(t, Split("", 100, 10))
	require.Nil(t, Split("   ", 100, 10))
}

func TestSplitNoChunksAreEmpty(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 50)
	chunks := Split(text, 80, 15)
	for _, c := range chunks {
		require.NotEmpty(t, strings.TrimSpace(c))
	}
}
