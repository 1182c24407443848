// Package redis implements the Concurrency Gate on Redis so every worker
// process shares one lease per resource key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// releaseScript deletes the key only while it still stores the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Gate stores leases as SET NX PX keys.
type Gate struct {
	client goredis.UniversalClient
	prefix string
}

var _ crawler.Gate = (*Gate)(nil)

// New wraps an existing client. prefix is prepended to every key.
func New(client goredis.UniversalClient, prefix string) *Gate {
	return &Gate{client: client, prefix: prefix}
}

// Acquire implements crawler.Gate.
func (g *Gate) Acquire(ctx context.Context, key, holder string, timeout time.Duration) (bool, error) {
	if holder == "" {
		return false, errors.New("gate holder is required")
	}
	if timeout <= 0 {
		return false, errors.New("gate timeout must be positive")
	}
	ok, err := g.client.SetNX(ctx, g.prefix+key, holder, timeout).Result()
	if err != nil {
		return false, fmt.Errorf("acquire gate %s: %w", key, err)
	}
	return ok, nil
}

// Release implements crawler.Gate.
func (g *Gate) Release(ctx context.Context, key, holder string) error {
	if err := releaseScript.Run(ctx, g.client, []string{g.prefix + key}, holder).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("release gate %s: %w", key, err)
	}
	return nil
}
