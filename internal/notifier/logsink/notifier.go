// Package logsink is a Notifier that writes deliveries to the structured log.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Notifier logs every message at Info.
type Notifier struct {
	logger *zap.Logger
}

var _ crawler.Notifier = (*Notifier)(nil)

// New returns a Notifier writing to logger.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger.Named("notifier")}
}

// Send implements crawler.Notifier.
func (n *Notifier) Send(_ context.Context, message, destination string) error {
	n.logger.Info("notification", zap.String("destination", destination), zap.String("message", message))
	return nil
}
