// Package ristretto keeps hot run lookups off the database with a short-TTL
// in-process cache built on dgraph-io/ristretto.
package ristretto

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/halverson/ticketpilot/internal/domain/run"
)

// Cache holds run snapshots keyed by run id. Entries are weighed by their
// approximate in-memory size so a handful of context-heavy runs cannot
// crowd out everything else.
type Cache struct {
	c *ristretto.Cache[string, run.Run]
}

// New creates a run cache bounded to roughly maxCostBytes of cached state.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, run.Run]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// GetRun returns a private copy of the cached run, if present. Callers may
// mutate the copy freely.
func (c *Cache) GetRun(id string) (run.Run, bool) {
	r, ok := c.c.Get(id)
	if !ok {
		return run.Run{}, false
	}
	return cloneRun(r), true
}

// SetRun caches a snapshot of the run for ttl. The stored value is a copy,
// detached from the caller's slices.
func (c *Cache) SetRun(r *run.Run, ttl time.Duration) {
	cp := cloneRun(*r)
	c.c.SetWithTTL(r.ID, cp, runCost(&cp), ttl)
}

// Invalidate drops the cached snapshot for a run.
func (c *Cache) Invalidate(id string) {
	c.c.Del(id)
}

// Close shuts down the cache and releases its internal buffers.
func (c *Cache) Close() {
	c.c.Close()
}

// cloneRun deep-copies the run's context so cached state never shares a
// backing array with a caller that keeps appending.
func cloneRun(r run.Run) run.Run {
	r.Context = append([]string(nil), r.Context...)
	return r
}

// runCost estimates the run's in-memory footprint for cache admission.
func runCost(r *run.Run) int64 {
	cost := int64(len(r.ID) + len(r.Title) + len(r.Description) + len(r.Error))
	for _, line := range r.Context {
		cost += int64(len(line))
	}
	return cost + 256 // fixed fields and struct overhead
}
