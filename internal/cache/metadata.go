// Package cache provides MetadataCache: a short-TTL, single-flight-guarded
// cache of the distinct agent/job-type sets the metadata endpoint serves
// (§4.4).
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const metadataTTL = 5 * time.Minute

// Loader recomputes the metadata snapshot from the store. Implemented by
// internal/store (ListDistinctAgents/ListDistinctJobTypes).
type Loader interface {
	ListDistinctAgents(ctx context.Context) ([]string, error)
	ListDistinctJobTypes(ctx context.Context) ([]string, error)
}

// Snapshot is the cached metadata payload.
type Snapshot struct {
	Agents   []string
	JobTypes []string
}

// MetadataCache serves Snapshot, recomputing from Loader at most once per
// TTL window and collapsing concurrent recomputes into a single call
// (§4.4: "only one query at a time refills the cache, concurrent callers
// await it").
type MetadataCache struct {
	loader Loader

	mu        sync.RWMutex
	snapshot  Snapshot
	expiresAt time.Time

	group singleflight.Group
}

// New creates a MetadataCache backed by loader. The cache starts empty and
// expired, so the first Get triggers a fill.
func New(loader Loader) *MetadataCache {
	return &MetadataCache{loader: loader}
}

// Get returns the current snapshot, refilling it if expired, and reports
// whether the returned value came from cache (cache_hit in the /metadata
// response, §4.3).
func (c *MetadataCache) Get(ctx context.Context) (Snapshot, bool, error) {
	c.mu.RLock()
	fresh := time.Now().Before(c.expiresAt)
	snapshot := c.snapshot
	c.mu.RUnlock()

	if fresh {
		return snapshot, true, nil
	}

	result, err, _ := c.group.Do("metadata", func() (interface{}, error) {
		return c.refill(ctx)
	})
	if err != nil {
		return Snapshot{}, false, err
	}

	return result.(Snapshot), false, nil
}

// Invalidate expires the cache immediately. Called by every write handler
// (insert, update, associate-commit) per §4.4.
func (c *MetadataCache) Invalidate() {
	c.mu.Lock()
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *MetadataCache) refill(ctx context.Context) (Snapshot, error) {
	// Re-check freshness now that we hold the single-flight slot: a
	// concurrent Get may have refilled the cache while this call waited.
	c.mu.RLock()
	fresh := time.Now().Before(c.expiresAt)
	snapshot := c.snapshot
	c.mu.RUnlock()

	if fresh {
		return snapshot, nil
	}

	agents, err := c.loader.ListDistinctAgents(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	jobTypes, err := c.loader.ListDistinctJobTypes(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{Agents: agents, JobTypes: jobTypes}

	c.mu.Lock()
	c.snapshot = snapshot
	c.expiresAt = time.Now().Add(metadataTTL)
	c.mu.Unlock()

	return snapshot, nil
}
