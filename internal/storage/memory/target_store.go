package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// TargetStore provides an in-memory implementation for development/testing.
type TargetStore struct {
	mu      sync.RWMutex
	targets map[string]crawler.CrawlTarget
}

var (
	_ crawler.TargetStore  = (*TargetStore)(nil)
	_ crawler.TargetSeeder = (*TargetStore)(nil)
)

// NewTargetStore constructs a TargetStore holding seed.
func NewTargetStore(seed ...crawler.CrawlTarget) *TargetStore {
	s := &TargetStore{targets: make(map[string]crawler.CrawlTarget, len(seed))}
	for _, t := range seed {
		s.targets[t.ID] = t
	}
	return s
}

// UpsertTarget inserts or replaces a target, keeping its run statistics.
func (s *TargetStore) UpsertTarget(_ context.Context, target crawler.CrawlTarget) error {
	if err := target.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.targets[target.ID]; ok {
		target.LastCrawlAt = prev.LastCrawlAt
		target.LastCrawlCount = prev.LastCrawlCount
	}
	s.targets[target.ID] = target
	return nil
}

// GetTarget fetches a non-deleted target by ID.
func (s *TargetStore) GetTarget(_ context.Context, id string) (crawler.CrawlTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok || t.DeletedAt != nil {
		return crawler.CrawlTarget{}, fmt.Errorf("target %s: %w", id, crawler.ErrTargetNotFound)
	}
	return clone(t), nil
}

// ListTargets returns all non-deleted targets by descending priority.
func (s *TargetStore) ListTargets(_ context.Context) ([]crawler.CrawlTarget, error) {
	return s.list(func(crawler.CrawlTarget) bool { return true }), nil
}

// ListEnabled returns enabled targets of platform by descending priority.
func (s *TargetStore) ListEnabled(_ context.Context, platform string) ([]crawler.CrawlTarget, error) {
	return s.list(func(t crawler.CrawlTarget) bool {
		return t.Enabled && t.Platform == platform
	}), nil
}

// RecordCrawl stores the last run's timestamp and success count.
func (s *TargetStore) RecordCrawl(_ context.Context, id string, at time.Time, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("target %s: %w", id, crawler.ErrTargetNotFound)
	}
	ts := at
	t.LastCrawlAt = &ts
	t.LastCrawlCount = count
	s.targets[id] = t
	return nil
}

// SoftDelete hides a target from every read; the row is kept.
func (s *TargetStore) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("target %s: %w", id, crawler.ErrTargetNotFound)
	}
	ts := at
	t.DeletedAt = &ts
	s.targets[id] = t
	return nil
}

func (s *TargetStore) list(keep func(crawler.CrawlTarget) bool) []crawler.CrawlTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.CrawlTarget, 0, len(s.targets))
	for _, t := range s.targets {
		if t.DeletedAt == nil && keep(t) {
			out = append(out, clone(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func clone(t crawler.CrawlTarget) crawler.CrawlTarget {
	t.Rules = append([]crawler.EligibilityRule(nil), t.Rules...)
	return t
}
