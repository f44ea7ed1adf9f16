package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicEmbedderDimension(t *testing.T) {
	e := NewDeterministic(32)
	require.Equal(t, 32, e.Dimension())
	require.Equal(t, "deterministic", e.Name())
}

func TestDeterministicEmbedderIsDeterministic(t *testing.T) {
	e := NewDeterministic(16)
	v1, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	v2, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestDeterministicEmbedderDistinguishesText(t *testing.T) {
	e := NewDeterministic(64)
	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha beta gamma", "completely different text"})
	require.NoError(t, err)
	require.NotEqual(t, vecs[0], vecs[1])
}

func TestDeterministicEmbedderNormalized(t *testing.T) {
	e := NewDeterministic(8)
	vecs, err := e.EmbedBatch(context.Background(), []string{"some reasonably long input text"})
	require.NoError(t, err)
	var sum float64
	for _, x := range vecs[0] {
		sum += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestDeterministicEmbedderEmptyInput(t *testing.T) {
	e := NewDeterministic(8)
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestEmbedWithRetrySucceedsFirstTry(t *testing.T) {
	e := NewDeterministic(8)
	var slept []int
	vecs, err := EmbedWithRetry(context.Background(), e, []string{"x"}, func(d int) { slept = append(slept, d) })
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Empty(t, slept)
}

func TestEmbedWithRetryExhaustsAttempts(t *testing.T) {
	fe := &failingCaller{}
	var slept []int
	_, err := EmbedWithRetry(context.Background(), fe, []string{"x"}, func(d int) { slept = append(slept, d) })
	require.Error(t, err)
	require.Equal(t, 3, fe.calls)
	require.Equal(t, []int{1, 2}, slept)
}

type failingCaller struct{ calls int }

func (f *failingCaller) Name() string   { return "failing" }
func (f *failingCaller) Dimension() int { return 1 }
func (f *failingCaller) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	f.calls++
	return nil, context.DeadlineExceeded
}
