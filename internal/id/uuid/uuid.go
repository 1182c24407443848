// Package uuid generates task IDs and Concurrency Gate holder tokens.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings, optionally prefixed so gate holders
// identify the process that owns a lease.
type Generator struct {
	prefix string
}

// New creates a Generator without a prefix.
func New() *Generator {
	return &Generator{}
}

// WithPrefix creates a Generator whose IDs start with prefix and a colon.
func WithPrefix(prefix string) *Generator {
	if prefix == "" {
		return New()
	}
	return &Generator{prefix: prefix + ":"}
}

// NewID returns a UUID7 string.
func (g Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}
