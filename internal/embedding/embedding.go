// Package embedding provides the Embedder interface used by ingest and
// query, an OpenAI-backed implementation, and a deterministic
// hash-based implementation usable in tests without a live API key.
package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragmemory/internal/errs"
	"ragmemory/internal/logging"
)

// Embedder converts text into fixed-dimension embedding vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
}

// openAIEmbedder calls the OpenAI embeddings endpoint.
type openAIEmbedder struct {
	client openai.Client
	model  string
	dim    int
}

// NewOpenAI constructs an Embedder backed by the OpenAI API.
func NewOpenAI(apiKey, model string, dim int) Embedder {
	return &openAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		dim:    dim,
	}
}

func (e *openAIEmbedder) Name() string   { return e.model }
func (e *openAIEmbedder) Dimension() int { return e.dim }

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, errs.Unavailable("embedding request failed", err)
	}
	if len(resp.Data) != len(texts) {
		logging.Log.Warnf("embedding: expected %d vectors, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}

// deterministicEmbedder is a lightweight, deterministic embedder suitable
// for tests and for operating without a live API key.
type deterministicEmbedder struct {
	dim  int
	name string
}

// NewDeterministic constructs a deterministic embedder of the given
// dimension, hashing byte 3-grams into a fixed-size, L2-normalized
// vector.
func NewDeterministic(dim int) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, name: "deterministic"}
}

func (d *deterministicEmbedder) Name() string   { return d.name }
func (d *deterministicEmbedder) Dimension() int { return d.dim }

func (d *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) < 3 {
		addGram(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(b[i:i+3], v)
		}
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := float32(1.0 / math.Sqrt(sum))
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

func addGram(gram []byte, v []float32) {
	h := fnv.New64a()
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

// EmbedWithRetry calls embed.EmbedBatch with up to two retries (1s, 2s
// backoff) before giving up, so a transient embedding-API hiccup doesn't
// fail an entire ingest or query.
func EmbedWithRetry(ctx context.Context, embed Embedder, texts []string, sleep func(d int)) ([][]float32, error) {
	var lastErr error
	backoffs := []int{0, 1, 2}
	for attempt, delay := range backoffs {
		if delay > 0 {
			sleep(delay)
		}
		vecs, err := embed.EmbedBatch(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		logging.Log.Warnf("embedding attempt %d failed: %v", attempt, err)
	}
	return nil, errs.Unavailable("embedding failed after retries", lastErr)
}
