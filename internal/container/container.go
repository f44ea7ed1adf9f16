// Package container implements the single owning struct that maps
// container tags to their per-tag indices. Each Container owns exactly
// one multi-reader/single-writer lock; callers must not nest a write
// inside a read.
package container

import (
	"context"
	"regexp"
	"sync"

	"ragmemory/internal/errs"
	"ragmemory/internal/facts"
	"ragmemory/internal/graph"
	"ragmemory/internal/hybrid"
	"ragmemory/internal/profile"
)

// TagPattern is the validation rule for container tags per the HTTP
// surface: containerTag matches [A-Za-z0-9_-]+.
var TagPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidTag reports whether tag is an acceptable container tag.
func ValidTag(tag string) bool {
	return tag != "" && TagPattern.MatchString(tag)
}

// Container owns one container's indices behind a single RWMutex. Readers
// are search and snapshot-save; writers are ingest-commit and
// load-from-disk.
type Container struct {
	Tag string

	mu      sync.RWMutex
	Hybrid  *hybrid.Engine
	Facts   *facts.Store
	Graph   *graph.Graph
	Profile *profile.Store

	loaded bool // whether the in-memory state has been populated from disk
}

func newContainer(tag string, vectorDim int) *Container {
	return &Container{
		Tag:     tag,
		Hybrid:  hybrid.NewEngine(vectorDim),
		Facts:   facts.NewStore(vectorDim),
		Graph:   graph.NewGraph(),
		Profile: profile.NewStore(),
	}
}

// RLock/RUnlock and Lock/Unlock expose the container's lock directly so
// callers (query pipeline, ingest orchestrator, persistence loader) can
// hold it across their own multi-step critical sections without this
// package re-entering it.
func (c *Container) RLock()   { c.mu.RLock() }
func (c *Container) RUnlock() { c.mu.RUnlock() }
func (c *Container) Lock()    { c.mu.Lock() }
func (c *Container) Unlock()  { c.mu.Unlock() }

// Loaded reports whether the container's in-memory state has been
// populated (either by ingest or by a prior snapshot load).
func (c *Container) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// MarkLoaded records that the container's in-memory state is now
// authoritative. Callers must hold the write lock.
func (c *Container) MarkLoaded() { c.loaded = true }

// Clear resets every index to empty, under the write lock.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Hybrid.Clear()
	c.Facts.Clear()
	c.Graph.Clear()
	c.Profile.Clear()
	c.loaded = true
}

// Registry is the single owning struct mapping tags to Containers.
type Registry struct {
	mu        sync.Mutex
	byTag     map[string]*Container
	vectorDim int
}

// NewRegistry constructs an empty Registry. vectorDim fixes the embedding
// dimensionality new containers are created with.
func NewRegistry(vectorDim int) *Registry {
	return &Registry{
		byTag:     make(map[string]*Container),
		vectorDim: vectorDim,
	}
}

// GetOrCreate returns the Container for tag, creating it if absent. The
// registry's own mutex is only ever held for this brief map operation,
// never across I/O.
func (r *Registry) GetOrCreate(_ context.Context, tag string) (*Container, error) {
	if !ValidTag(tag) {
		return nil, errs.Invalidf("invalid container tag %q", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byTag[tag]
	if !ok {
		c = newContainer(tag, r.vectorDim)
		r.byTag[tag] = c
	}
	return c, nil
}

// Get returns the Container for tag if it already exists in memory,
// without creating it (used to distinguish "never touched" from "empty"
// when deciding whether a disk snapshot needs to be loaded).
func (r *Registry) Get(tag string) (*Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byTag[tag]
	return c, ok
}

// Tags returns every known container tag, sorted is not guaranteed by this
// call; callers that need determinism should sort the result themselves.
func (r *Registry) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags := make([]string, 0, len(r.byTag))
	for t := range r.byTag {
		tags = append(tags, t)
	}
	return tags
}

// Remove drops tag from the registry entirely; ingest/search will
// recreate it on next use. The /clear handler does not call it: it
// empties the container in place with Container.Clear.
func (r *Registry) Remove(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byTag, tag)
}
