// Package ratelimit throttles page loads per host with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/social-harvester/internal/crawler"
	"github.com/JakeFAU/social-harvester/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Source delays Open on the wrapped PageSource until the URL's host has a token.
type Source struct {
	next     crawler.PageSource
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

var _ crawler.PageSource = (*Source)(nil)

// Wrap returns next unchanged when cfg disables limiting.
func Wrap(next crawler.PageSource, cfg Config) crawler.PageSource {
	if cfg.RPS <= 0 {
		return next
	}
	return New(next, cfg)
}

// New creates a Source.
func New(next crawler.PageSource, cfg Config) *Source {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Source{
		next:     next,
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Open waits for a token, then delegates.
func (s *Source) Open(ctx context.Context, rawURL string) (crawler.Session, error) {
	if err := s.Wait(ctx, rawURL); err != nil {
		return nil, err
	}
	session, err := s.next.Open(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("rate limited open: %w", err)
	}
	return session, nil
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (s *Source) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	limiter := s.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (s *Source) limiterFor(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(s.rate, s.burst)
		s.limiters[host] = limiter
	}
	return limiter
}
