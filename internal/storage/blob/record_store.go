// Package blob persists records as JSON objects in a BlobStore, one object per
// (channel, identifier) so rewrites replace instead of duplicate.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

const contentType = "application/json"

// RecordStore implements crawler.RecordStore over a BlobStore.
type RecordStore struct {
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
}

var _ crawler.RecordStore = (*RecordStore)(nil)

// NewRecordStore writes objects under prefix.
func NewRecordStore(blobs crawler.BlobStore, hasher crawler.Hasher, prefix string) (*RecordStore, error) {
	if blobs == nil || hasher == nil {
		return nil, errors.New("blob store and hasher are required")
	}
	return &RecordStore{blobs: blobs, hasher: hasher, prefix: strings.Trim(prefix, "/")}, nil
}

// Create writes records/<channel>/<hash>.json.
func (s *RecordStore) Create(ctx context.Context, record crawler.Record) error {
	if record.ChannelID == "" || record.Identifier == "" {
		return errors.New("record channel and identifier are required")
	}
	return s.put(ctx, "records", record.ChannelID, record.Identifier, record)
}

// CreateIgnored writes ignored/<channel>/<hash>.json.
func (s *RecordStore) CreateIgnored(ctx context.Context, record crawler.IgnoredRecord) error {
	return s.put(ctx, "ignored", record.ChannelID, record.Identifier, record)
}

// ObjectPath returns where a record for (channel, identifier) of kind is stored.
func (s *RecordStore) ObjectPath(kind, channel, identifier string) (string, error) {
	digest, err := s.hasher.Hash([]byte(identifier))
	if err != nil {
		return "", fmt.Errorf("hash identifier: %w", err)
	}
	if channel == "" {
		channel = "_"
	}
	return path.Join(s.prefix, kind, channel, digest+".json"), nil
}

func (s *RecordStore) put(ctx context.Context, kind, channel, identifier string, v any) error {
	objectPath, err := s.ObjectPath(kind, channel, identifier)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", kind, err)
	}
	if _, err := s.blobs.PutObject(ctx, objectPath, contentType, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("put %s: %w", objectPath, err)
	}
	return nil
}
