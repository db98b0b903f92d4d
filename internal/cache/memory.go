package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tullo/guardian/internal/models"
)

// DefaultTTL is how long a verdict stays valid.
const DefaultTTL = 30 * time.Minute

// Clock returns the current time; injected so expiry can be tested.
type Clock func() time.Time

type entry struct {
	result    *models.ModerationResult
	expiresAt time.Time
}

// ResultCache is an in-process, TTL-bounded verdict cache. Expired entries
// are treated as absent until Prune removes them.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     Clock
}

// NewResultCache creates a cache. A zero ttl uses DefaultTTL and a nil clock
// uses time.Now.
func NewResultCache(ttl time.Duration, clock Clock) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &ResultCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     clock,
	}
}

// Get returns a copy of the cached verdict if it has not expired.
func (c *ResultCache) Get(_ context.Context, key string) (*models.ModerationResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.result.Clone(), true
}

// Put stores a copy of result. Concurrent writers race with last-write-wins.
func (c *ResultCache) Put(ctx context.Context, key string, result *models.ModerationResult) {
	c.PutWithTTL(ctx, key, result, c.ttl)
}

// PutWithTTL stores a copy of result that expires after ttl, capped at the
// cache TTL.
func (c *ResultCache) PutWithTTL(_ context.Context, key string, result *models.ModerationResult, ttl time.Duration) {
	if result == nil || ttl <= 0 {
		return
	}
	if ttl > c.ttl {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.entries[key] = entry{result: result.Clone(), expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune drops expired entries and returns how many were removed.
func (c *ResultCache) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// StartJanitor prunes every interval until ctx ends.
func (c *ResultCache) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Prune()
			}
		}
	}()
}
