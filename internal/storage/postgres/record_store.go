package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// RecordStore writes accepted and ignored candidates. Both tables are keyed
// on (channel_id, identifier) so repeated inserts are no-ops.
type RecordStore struct {
	pool Pool
}

var _ crawler.RecordStore = (*RecordStore)(nil)

// NewRecordStore wraps an open pool.
func NewRecordStore(pool Pool) (*RecordStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &RecordStore{pool: pool}, nil
}

// Create inserts an accepted record.
func (s *RecordStore) Create(ctx context.Context, record crawler.Record) error {
	if record.ChannelID == "" || record.Identifier == "" {
		return errors.New("record channel and identifier are required")
	}
	metadata, err := json.Marshal(fieldsOrEmpty(record.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := `
INSERT INTO crawl_records (channel_id, identifier, body, metadata, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (channel_id, identifier) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query,
		record.ChannelID,
		record.Identifier,
		record.Body,
		metadata,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// CreateIgnored inserts a rejected candidate with its reason.
func (s *RecordStore) CreateIgnored(ctx context.Context, record crawler.IgnoredRecord) error {
	fields, err := json.Marshal(fieldsOrEmpty(record.Fields))
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	query := `
INSERT INTO ignored_records (channel_id, identifier, fields, reason, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (channel_id, identifier) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query,
		record.ChannelID,
		record.Identifier,
		fields,
		record.Reason,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert ignored record: %w", err)
	}
	return nil
}

func fieldsOrEmpty(fields map[string]string) map[string]string {
	if fields == nil {
		return map[string]string{}
	}
	return fields
}
