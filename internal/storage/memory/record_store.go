package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

type recordKey struct {
	channel    string
	identifier string
}

// RecordStore keeps accepted and ignored candidates in insertion order.
type RecordStore struct {
	mu      sync.RWMutex
	seen    map[recordKey]struct{}
	records []crawler.Record
	ignored []crawler.IgnoredRecord
}

var _ crawler.RecordStore = (*RecordStore)(nil)

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{seen: make(map[recordKey]struct{})}
}

// Create stores record once per (ChannelID, Identifier); repeats are no-ops.
func (s *RecordStore) Create(_ context.Context, record crawler.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{channel: record.ChannelID, identifier: record.Identifier}
	if _, ok := s.seen[key]; ok {
		return nil
	}
	s.seen[key] = struct{}{}
	s.records = append(s.records, record)
	return nil
}

// CreateIgnored appends a rejected candidate.
func (s *RecordStore) CreateIgnored(_ context.Context, record crawler.IgnoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignored = append(s.ignored, record)
	return nil
}

// Records returns a copy of the accepted records.
func (s *RecordStore) Records() []crawler.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Record(nil), s.records...)
}

// Ignored returns a copy of the ignored records.
func (s *RecordStore) Ignored() []crawler.IgnoredRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.IgnoredRecord(nil), s.ignored...)
}
