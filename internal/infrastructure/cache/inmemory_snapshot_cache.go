package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
)

// snapshotEntry is a cached snapshot with its expiration
type snapshotEntry struct {
	snap      refund.CachedSnapshot
	expiresAt time.Time
}

// InMemorySnapshotCache implements refund.SnapshotCache using an in-memory map.
// It is process scoped: every instance of the service keeps its own copy.
type InMemorySnapshotCache struct {
	mu        sync.RWMutex
	entries   map[string]snapshotEntry
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemorySnapshotCache creates a cache whose entries live for ttl.
// It starts a background goroutine that drops expired entries every cleanupInterval.
func NewInMemorySnapshotCache(ttl, cleanupInterval time.Duration) *InMemorySnapshotCache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	c := &InMemorySnapshotCache{
		entries:  make(map[string]snapshotEntry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop(cleanupInterval)

	return c
}

// Get returns the cached snapshot of an order unless it expired
func (c *InMemorySnapshotCache) Get(_ context.Context, orderID string) (refund.CachedSnapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[orderID]
	if !exists || !c.now().Before(e.expiresAt) {
		return refund.CachedSnapshot{}, false, nil
	}
	return e.snap, true, nil
}

// Set stores a snapshot for the configured ttl. A live entry computed later than
// snap is kept, so a delayed writer cannot replace a newer snapshot.
func (c *InMemorySnapshotCache) Set(_ context.Context, snap refund.CachedSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if cur, ok := c.entries[snap.OrderID]; ok && now.Before(cur.expiresAt) && cur.snap.ComputedAt.After(snap.ComputedAt) {
		return nil
	}
	c.entries[snap.OrderID] = snapshotEntry{
		snap:      snap,
		expiresAt: now.Add(c.ttl),
	}
	return nil
}

// Invalidate drops the cached snapshot of an order
func (c *InMemorySnapshotCache) Invalidate(_ context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, orderID)
	return nil
}

// Close stops the cleanup goroutine.
// Safe to call multiple times
func (c *InMemorySnapshotCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemorySnapshotCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemorySnapshotCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for orderID, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, orderID)
		}
	}
}

// Size returns the number of entries, expired ones included (for testing/monitoring)
func (c *InMemorySnapshotCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ refund.SnapshotCache = (*InMemorySnapshotCache)(nil)
