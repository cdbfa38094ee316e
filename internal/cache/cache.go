// Package cache bounds how often expensive snapshot refreshes occur.
// Entries carry a TTL; capacity is bounded by evicting the oldest insertion.
// Concurrent fetches for the same market coalesce onto a single in-flight
// provider call.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cometguard/internal/domain"
)

// FetchFunc is the external provider call invoked on a cache miss.
type FetchFunc func(ctx context.Context) (*domain.MarketSnapshot, error)

// entry is owned exclusively by the cache; snapshots are cloned on the way
// in and on the way out so eviction can never race with a caller's read.
type entry struct {
	snapshot   *domain.MarketSnapshot
	insertedAt time.Time
	expiresAt  time.Time
}

// Stats are cumulative hit/miss counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// SnapshotCache is a TTL + capacity bounded store keyed by market id.
// It is the only shared mutable state in the assessment path.
type SnapshotCache struct {
	ttl         time.Duration
	maxCapacity int

	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats

	group singleflight.Group

	now func() time.Time // swapped in tests
}

// New creates a cache. maxCapacity < 1 is treated as 1.
func New(ttl time.Duration, maxCapacity int) *SnapshotCache {
	if maxCapacity < 1 {
		maxCapacity = 1
	}
	return &SnapshotCache{
		ttl:         ttl,
		maxCapacity: maxCapacity,
		entries:     make(map[string]*entry),
		now:         time.Now,
	}
}

// GetOrFetch returns a live cached snapshot, or invokes fetch and stores the
// result with expiresAt = now + ttl. Concurrent callers for the same missing
// key share one fetch; callers for different keys proceed in parallel.
//
// The fetch runs on a context detached from the caller: a caller that times
// out gets ctx.Err(), while the in-flight fetch may still complete and
// populate the cache for future callers. A failed fetch leaves no entry
// behind, and its singleflight slot is released on completion, so subsequent
// callers re-fetch instead of inheriting the failure.
func (c *SnapshotCache) GetOrFetch(ctx context.Context, marketID string, fetch FetchFunc) (*domain.MarketSnapshot, error) {
	if snap, ok := c.lookup(marketID); ok {
		return snap, nil
	}

	ch := c.group.DoChan(marketID, func() (interface{}, error) {
		// A waiter queued behind a completed flight may find the entry
		// already populated.
		if snap, ok := c.lookup(marketID); ok {
			return snap, nil
		}
		snap, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.insert(marketID, snap)
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Clone per caller: the singleflight value is shared by every
		// coalesced waiter.
		return res.Val.(*domain.MarketSnapshot).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup returns a clone of a live entry and drops expired ones.
func (c *SnapshotCache) lookup(marketID string) (*domain.MarketSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[marketID]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, marketID)
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.snapshot.Clone(), true
}

// insert stores a clone, evicting the entry with the earliest insertedAt
// when the capacity bound would be exceeded. Eviction is insertion-order,
// not LRU.
func (c *SnapshotCache) insert(marketID string, snap *domain.MarketSnapshot) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[marketID]; !exists && len(c.entries) >= c.maxCapacity {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.insertedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.insertedAt
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[marketID] = &entry{
		snapshot:   snap.Clone(),
		insertedAt: now,
		expiresAt:  now.Add(c.ttl),
	}
}

// Len returns the current entry count.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit/miss counters.
func (c *SnapshotCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Contains reports whether a live entry exists without counting a hit or
// a miss.
func (c *SnapshotCache) Contains(marketID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[marketID]
	return ok && c.now().Before(e.expiresAt)
}
