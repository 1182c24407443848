// Package pubsub delivers rendered messages to a Google Cloud Pub/Sub topic
// for downstream chat bridges.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Envelope is the JSON payload of every published message.
type Envelope struct {
	Destination string    `json:"destination"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sent_at"`
}

// Notifier publishes Envelopes and waits for the server acknowledgement.
type Notifier struct {
	topic *pubsub.Topic
	clock crawler.Clock
}

var _ crawler.Notifier = (*Notifier)(nil)

// New creates a Notifier for topicID on client.
func New(client *pubsub.Client, topicID string, clock crawler.Clock) (*Notifier, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if topicID == "" {
		return nil, errors.New("pubsub topic is required")
	}
	return &Notifier{topic: client.Topic(topicID), clock: clock}, nil
}

// Send implements crawler.Notifier.
func (n *Notifier) Send(ctx context.Context, message, destination string) error {
	env := Envelope{Destination: destination, Message: message}
	if n.clock != nil {
		env.SentAt = n.clock.Now()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"destination": destination},
	}
	if _, err := n.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("%w: publish message: %v", crawler.ErrNotifierFailed, err)
	}
	return nil
}

// Stop flushes pending publishes.
func (n *Notifier) Stop() {
	n.topic.Stop()
}
