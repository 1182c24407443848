// Package redis stores dedup entries as expiring Redis keys shared by all workers.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Cache checks presence with EXISTS and marks with SET EX.
type Cache struct {
	client goredis.UniversalClient
	prefix string
}

var _ crawler.DedupCache = (*Cache)(nil)

// New wraps client; prefix namespaces every key.
func New(client goredis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Exists implements crawler.DedupCache.
func (c *Cache) Exists(ctx context.Context, id string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists %s: %w", id, err)
	}
	return n > 0, nil
}

// Mark implements crawler.DedupCache.
func (c *Cache) Mark(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("dedup ttl must be positive")
	}
	if err := c.client.Set(ctx, c.prefix+id, 1, ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark %s: %w", id, err)
	}
	return nil
}
