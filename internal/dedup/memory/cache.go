// Package memory keeps dedup entries in process memory.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Cache maps identifiers to their expiry.
type Cache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

var _ crawler.DedupCache = (*Cache)(nil)

// New returns an empty Cache. A nil clock uses wall time.
func New(clock crawler.Clock) *Cache {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Cache{now: now, entries: make(map[string]time.Time)}
}

// Exists implements crawler.DedupCache. Expired entries are evicted on read.
func (c *Cache) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	expires, ok := c.entries[id]
	if !ok {
		return false, nil
	}
	if !c.now().Before(expires) {
		delete(c.entries, id)
		return false, nil
	}
	return true, nil
}

// Mark implements crawler.DedupCache.
func (c *Cache) Mark(ctx context.Context, id string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return errors.New("dedup ttl must be positive")
	}
	c.mu.Lock()
	c.entries[id] = c.now().Add(ttl)
	c.mu.Unlock()
	return nil
}

// Len reports how many entries are stored, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
