// Package snapshot implements the in-memory backend's on-disk persistence:
// one container per directory under the cache root, four JSON files
// (search.json, graph.json, facts.json, profile.json), each written
// atomically by write-then-rename. A cross-process advisory lock
// (github.com/gofrs/flock) guards the directory against concurrent
// writers from another process, and a singleflight.Group dedups
// concurrent loads of the same container tag within this process.
package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"ragmemory/internal/container"
	"ragmemory/internal/errs"
	"ragmemory/internal/facts"
	"ragmemory/internal/graph"
	"ragmemory/internal/hybrid"
	"ragmemory/internal/logging"
	"ragmemory/internal/profile"
)

const (
	searchFile  = "search.json"
	graphFile   = "graph.json"
	factsFile   = "facts.json"
	profileFile = "profile.json"
)

// Backend is the file-based persistence backend for the in-memory index
// implementations. When DATABASE_URL is set, internal/persistence/pg is
// used instead and Backend is not constructed.
type Backend struct {
	cacheDir string
	lockDir  string

	loadGroup singleflight.Group
}

// New constructs a Backend rooted at cacheDir, with advisory locks held in
// lockDir (defaults to <cacheDir>/.locks if empty).
func New(cacheDir, lockDir string) *Backend {
	if lockDir == "" {
		lockDir = filepath.Join(cacheDir, ".locks")
	}
	return &Backend{cacheDir: cacheDir, lockDir: lockDir}
}

func (b *Backend) containerDir(tag string) string {
	return filepath.Join(b.cacheDir, tag)
}

func (b *Backend) lockPath(tag string) string {
	return filepath.Join(b.lockDir, tag+".lock")
}

// Snapshot serializes every index of c to its four JSON files under the
// container's directory. Each file is written atomically: the new
// contents land in a temp file in the same directory, which is then
// renamed over the target (rename is atomic on POSIX and NTFS within the
// same volume).
func (b *Backend) Snapshot(ctx context.Context, tag string, c *container.Container) error {
	dir := b.containerDir(tag)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "snapshot: mkdir failed", err)
	}
	if err := os.MkdirAll(b.lockDir, 0o755); err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "snapshot: mkdir lockdir failed", err)
	}

	fl := flock.New(b.lockPath(tag))
	if err := fl.Lock(); err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "snapshot: failed to acquire flock", err)
	}
	defer fl.Unlock()

	c.RLock()
	searchSnap := c.Hybrid.Save()
	graphSnap := c.Graph.Save()
	factsSnap := c.Facts.Save()
	profileSnap := c.Profile.Save()
	c.RUnlock()

	if err := writeAtomic(filepath.Join(dir, searchFile), searchSnap); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, graphFile), graphSnap); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, factsFile), factsSnap); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, profileFile), profileSnap); err != nil {
		return err
	}
	return nil
}

// Load populates c's indices from disk, tolerating any subset of the four
// files existing; a missing or corrupt file yields an empty component
// rather than failing the whole load (PersistenceCorrupt is logged, not
// returned). Concurrent Load calls for the same tag are deduplicated via
// singleflight so only one goroutine actually touches the filesystem.
func (b *Backend) Load(ctx context.Context, tag string, c *container.Container) error {
	_, err, _ := b.loadGroup.Do(tag, func() (any, error) {
		dir := b.containerDir(tag)

		var searchSnap hybrid.Snapshot
		loadFile(filepath.Join(dir, searchFile), &searchSnap)
		var graphSnap graph.Snapshot
		loadFile(filepath.Join(dir, graphFile), &graphSnap)
		var factsSnap facts.Snapshot
		loadFile(filepath.Join(dir, factsFile), &factsSnap)
		var profileSnap profile.Snapshot
		loadFile(filepath.Join(dir, profileFile), &profileSnap)

		c.Lock()
		c.Hybrid.Load(searchSnap)
		c.Graph.Load(graphSnap)
		c.Facts.Load(factsSnap)
		c.Profile.Load(profileSnap)
		c.MarkLoaded()
		c.Unlock()
		return nil, nil
	})
	return err
}

// HasSnapshot reports whether any of the four files exist for tag, used
// by the query pipeline to decide whether a lazy load is worth attempting
// versus treating the container as genuinely empty.
func (b *Backend) HasSnapshot(tag string) bool {
	dir := b.containerDir(tag)
	for _, f := range []string{searchFile, graphFile, factsFile, profileFile} {
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			return true
		}
	}
	return false
}

// Clear removes the container's entire snapshot directory.
func (b *Backend) Clear(ctx context.Context, tag string) error {
	return os.RemoveAll(b.containerDir(tag))
}

func writeAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "snapshot: marshal failed for "+path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "snapshot: write failed for "+path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Wrap(errs.ExternalUnavailable, "snapshot: rename failed for "+path, err)
	}
	return nil
}

// loadFile reads path into v, ignoring a missing file and logging (but not
// failing on) a corrupt one: both are treated as "component absent"
// rather than aborting the whole container load.
func loadFile(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		logging.Log.Warnf("snapshot: %s failed to parse, treating as absent: %v", path, err)
	}
}
