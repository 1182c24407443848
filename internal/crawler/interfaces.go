package crawler

import (
	"context"
	"io"
	"time"
)

// PageSource opens crawl URLs inside the shared automation resource.
type PageSource interface {
	Open(ctx context.Context, url string) (Session, error)
}

// Session is one loaded page.
type Session interface {
	Items(ctx context.Context) ([]ItemHandle, error)
	Close() error
}

// ItemHandle points at one candidate element on a loaded page.
type ItemHandle interface {
	Identifier(ctx context.Context) (string, error)
	Field(ctx context.Context, name string) (string, error)
}

// TargetStore loads crawl targets and persists run statistics onto them.
type TargetStore interface {
	GetTarget(ctx context.Context, id string) (CrawlTarget, error)
	ListTargets(ctx context.Context) ([]CrawlTarget, error)
	// ListEnabled returns enabled, non-deleted targets of a platform ordered by descending priority.
	ListEnabled(ctx context.Context, platform string) ([]CrawlTarget, error)
	RecordCrawl(ctx context.Context, id string, at time.Time, count int) error
}

// RecordStore persists accepted and ignored candidates.
// Create is idempotent on (ChannelID, Identifier).
type RecordStore interface {
	Create(ctx context.Context, record Record) error
	CreateIgnored(ctx context.Context, record IgnoredRecord) error
}

// Notifier delivers a rendered message to an output destination.
type Notifier interface {
	Send(ctx context.Context, message string, destination string) error
}

// DedupCache remembers identifiers already processed within a retention window.
type DedupCache interface {
	Exists(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string, ttl time.Duration) error
}

// Gate is a named, self-expiring mutual-exclusion lock.
type Gate interface {
	// Acquire attempts a non-blocking acquisition; false means another holder owns key.
	Acquire(ctx context.Context, key string, holder string, timeout time.Duration) (bool, error)
	// Release is a no-op when holder does not own key.
	Release(ctx context.Context, key string, holder string) error
}

// Queue provides enqueue/dequeue semantics for crawl tasks.
type Queue interface {
	Enqueue(ctx context.Context, task TaskRequest) error
	Dequeue(ctx context.Context) (TaskRequest, error)
}

// Hasher computes digests used as stable object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs and lock holder tokens.
type IDGenerator interface {
	NewID() (string, error)
}

// TargetSeeder persists operator-defined targets, inserting or replacing by ID.
type TargetSeeder interface {
	UpsertTarget(ctx context.Context, target CrawlTarget) error
}

// BlobStore persists artifacts and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
