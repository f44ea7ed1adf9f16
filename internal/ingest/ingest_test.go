package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragmemory/internal/container"
	"ragmemory/internal/embedding"
	"ragmemory/internal/model"
)

type fakeExtractor struct {
	results map[string]model.ExtractResult
	errs    map[string]error
	calls   int
}

func (f *fakeExtractor) Extract(ctx context.Context, sess model.Session) (model.ExtractResult, error) {
	f.calls++
	if err, ok := f.errs[sess.SessionID]; ok {
		return model.ExtractResult{}, err
	}
	return f.results[sess.SessionID], nil
}

type fakeSnapshotter struct {
	calls int
	err   error
}

func (f *fakeSnapshotter) Snapshot(ctx context.Context, tag string, c *container.Container) error {
	f.calls++
	return f.err
}

func TestIngestCommitsChunksFactsAndProfile(t *testing.T) {
	reg := container.NewRegistry(8)
	ex := &fakeExtractor{results: map[string]model.ExtractResult{
		"s1": {MemoriesText: "likes tea\nworks as a teacher"},
	}}
	snap := &fakeSnapshotter{}
	o := New(ex, embedding.NewDeterministic(8), reg, snap, 1600, 320, 10, 10)

	sessions := []model.Session{{SessionID: "s1", Date: "2026-01-01", Messages: []model.Message{{Role: "user", Content: "hi"}}}}
	ids, err := o.Ingest(context.Background(), "tag1", sessions)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	c, ok := reg.Get("tag1")
	require.True(t, ok)
	require.True(t, c.Loaded())
	require.True(t, c.Hybrid.HasData())
	require.Equal(t, 2, c.Facts.GetFactCount())
	require.Len(t, c.Profile.Facts(), 2)
	require.Equal(t, 1, snap.calls)
}

func TestIngestSkipsFailedSessionsButContinues(t *testing.T) {
	reg := container.NewRegistry(8)
	ex := &fakeExtractor{
		results: map[string]model.ExtractResult{"s2": {MemoriesText: "likes coffee"}},
		errs:    map[string]error{"s1": context.DeadlineExceeded},
	}
	o := New(ex, embedding.NewDeterministic(8), reg, nil, 1600, 320, 10, 10)

	sessions := []model.Session{
		{SessionID: "s1", Messages: []model.Message{{Role: "user", Content: "bad"}}},
		{SessionID: "s2", Messages: []model.Message{{Role: "user", Content: "good"}}},
	}
	ids, err := o.Ingest(context.Background(), "tag1", sessions)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	c, ok := reg.Get("tag1")
	require.True(t, ok)
	require.Equal(t, 1, c.Facts.GetFactCount())
}

func TestIngestCommitsGraphEntitiesAndRelationships(t *testing.T) {
	reg := container.NewRegistry(8)
	ex := &fakeExtractor{results: map[string]model.ExtractResult{
		"s1": {
			MemoriesText: "moved to berlin",
			Entities:     []model.ExtractedEntity{{Name: "berlin", Type: "city", Summary: "a city"}},
			Relationships: []model.ExtractedRelationship{
				{Source: "alice", Relation: "moved_to", Target: "berlin", Date: "2026-01-01"},
			},
		},
	}}
	o := New(ex, embedding.NewDeterministic(8), reg, nil, 1600, 320, 10, 10)

	sessions := []model.Session{{SessionID: "s1", Messages: []model.Message{{Role: "user", Content: "hi"}}}}
	_, err := o.Ingest(context.Background(), "tag1", sessions)
	require.NoError(t, err)

	c, ok := reg.Get("tag1")
	require.True(t, ok)
	ctx := c.Graph.GetContext([]string{"berlin"}, 1)
	require.NotEmpty(t, ctx.Nodes)
	require.NotEmpty(t, ctx.Edges)
}

func TestChunkIDAndFactIDAreDeterministic(t *testing.T) {
	require.Equal(t, "tag1_s1_0", ChunkID("tag1", "s1", 0))
	require.Equal(t, "tag1_s1_fact_0", FactID("tag1", "s1", 0))
}

func TestIngestEmptySessionsProducesNoChunks(t *testing.T) {
	reg := container.NewRegistry(8)
	ex := &fakeExtractor{results: map[string]model.ExtractResult{}}
	o := New(ex, embedding.NewDeterministic(8), reg, nil, 1600, 320, 10, 10)

	ids, err := o.Ingest(context.Background(), "tag1", nil)
	require.NoError(t, err)
	require.Empty(t, ids)
}
