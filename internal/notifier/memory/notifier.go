// Package memory contains an in-memory Notifier for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Delivery captures one Send call.
type Delivery struct {
	Destination string
	Message     string
}

// Notifier stores deliveries for inspection.
type Notifier struct {
	mu         sync.RWMutex
	deliveries []Delivery
	err        error
}

var _ crawler.Notifier = (*Notifier)(nil)

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes every later Send return err; nil restores delivery.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

// Send records the message.
func (n *Notifier) Send(_ context.Context, message, destination string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.deliveries = append(n.deliveries, Delivery{Destination: destination, Message: message})
	return nil
}

// Deliveries returns the recorded sends.
func (n *Notifier) Deliveries() []Delivery {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Delivery, len(n.deliveries))
	copy(out, n.deliveries)
	return out
}
