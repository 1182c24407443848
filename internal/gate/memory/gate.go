// Package memory provides an in-process Concurrency Gate for single-node runs.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

type lease struct {
	holder  string
	expires time.Time
}

// Gate is a map of self-expiring leases guarded by a mutex.
type Gate struct {
	mu     sync.Mutex
	clock  crawler.Clock
	leases map[string]lease
}

var _ crawler.Gate = (*Gate)(nil)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New constructs a Gate. A nil clock uses wall time.
func New(clock crawler.Clock) *Gate {
	if clock == nil {
		clock = systemClock{}
	}
	return &Gate{clock: clock, leases: make(map[string]lease)}
}

// Acquire implements crawler.Gate.
func (g *Gate) Acquire(ctx context.Context, key, holder string, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if holder == "" {
		return false, errors.New("gate holder is required")
	}
	if timeout <= 0 {
		return false, errors.New("gate timeout must be positive")
	}

	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.leases[key]; ok && now.Before(current.expires) {
		return false, nil
	}
	g.leases[key] = lease{holder: holder, expires: now.Add(timeout)}
	return true, nil
}

// Release implements crawler.Gate.
func (g *Gate) Release(_ context.Context, key, holder string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.leases[key]; ok && current.holder == holder {
		delete(g.leases, key)
	}
	return nil
}
