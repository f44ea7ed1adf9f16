package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ragmemory/internal/container"
	"ragmemory/internal/model"
)

func TestSnapshotLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, "")
	reg := container.NewRegistry(2)

	c, err := reg.GetOrCreate(context.Background(), "tag1")
	require.NoError(t, err)
	c.Lock()
	c.Hybrid.AddChunks([]model.Chunk{{ID: "tag1_s1_0", Content: "hello", SessionID: "s1", ChunkIndex: 0, Embedding: []float32{1, 0}}})
	c.Facts.AddFacts([]model.AtomicFact{{ID: "tag1_s1_fact_0", Content: "likes tea", SessionID: "s1", Embedding: []float32{0, 1}}})
	c.Graph.AddEntity("tea", "beverage", "a drink", "s1")
	c.Profile.Merge([]model.ProfileFact{{Content: "likes tea"}})
	c.MarkLoaded()
	c.Unlock()

	require.NoError(t, b.Snapshot(context.Background(), "tag1", c))
	require.True(t, b.HasSnapshot("tag1"))
	require.False(t, b.HasSnapshot("unknown-tag"))

	reg2 := container.NewRegistry(2)
	c2, err := reg2.GetOrCreate(context.Background(), "tag1")
	require.NoError(t, err)
	require.False(t, c2.Loaded())

	require.NoError(t, b.Load(context.Background(), "tag1", c2))
	require.True(t, c2.Loaded())
	require.True(t, c2.Hybrid.HasData())
	require.Equal(t, 1, c2.Facts.GetFactCount())
	require.Len(t, c2.Profile.Facts(), 1)
}

func TestLoadToleratesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, "")
	reg := container.NewRegistry(2)
	c, err := reg.GetOrCreate(context.Background(), "empty-tag")
	require.NoError(t, err)

	require.NoError(t, b.Load(context.Background(), "empty-tag", c))
	require.True(t, c.Loaded())
	require.False(t, c.Hybrid.HasData())
}

func TestLoadToleratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, "")
	containerDir := filepath.Join(dir, "bad-tag")
	require.NoError(t, os.MkdirAll(containerDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(containerDir, searchFile), []byte("{not json"), 0o644))

	reg := container.NewRegistry(2)
	c, err := reg.GetOrCreate(context.Background(), "bad-tag")
	require.NoError(t, err)

	require.NoError(t, b.Load(context.Background(), "bad-tag", c))
	require.True(t, c.Loaded())
	require.False(t, c.Hybrid.HasData())
}

func TestClearRemovesSnapshotDir(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, "")
	reg := container.NewRegistry(2)
	c, err := reg.GetOrCreate(context.Background(), "tag1")
	require.NoError(t, err)

	require.NoError(t, b.Snapshot(context.Background(), "tag1", c))
	require.True(t, b.HasSnapshot("tag1"))

	require.NoError(t, b.Clear(context.Background(), "tag1"))
	require.False(t, b.HasSnapshot("tag1"))
}
