// Package telegram delivers messages through the Telegram Bot API sendMessage method.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/social-harvester/internal/crawler"
	"github.com/JakeFAU/social-harvester/internal/message"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Config holds bot credentials.
type Config struct {
	BaseURL   string
	Token     string
	ParseMode string
	Timeout   time.Duration
}

// Notifier posts to /bot<token>/sendMessage. The destination is the chat ID
// or @channel username.
type Notifier struct {
	client    *http.Client
	endpoint  string
	parseMode string
}

var _ crawler.Notifier = (*Notifier)(nil)

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// New builds a Notifier. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Notifier{
		client:    client,
		endpoint:  fmt.Sprintf("%s/bot%s/sendMessage", base, cfg.Token),
		parseMode: cfg.ParseMode,
	}, nil
}

// Send implements crawler.Notifier.
func (n *Notifier) Send(ctx context.Context, text, destination string) error {
	if destination == "" {
		return fmt.Errorf("%w: empty chat id", crawler.ErrNotifierFailed)
	}
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    destination,
		Text:      message.Purify(text),
		ParseMode: n.parseMode,
	})
	if err != nil {
		return fmt.Errorf("marshal sendMessage: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", crawler.ErrNotifierFailed, redact(err.Error(), n.endpoint))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", crawler.ErrNotifierFailed, err)
	}
	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode != http.StatusOK || !parsed.OK {
		desc := parsed.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: telegram status %d: %s", crawler.ErrNotifierFailed, resp.StatusCode, desc)
	}
	return nil
}

// redact keeps the bot token out of logged transport errors.
func redact(msg, endpoint string) string {
	return strings.ReplaceAll(msg, endpoint, "<telegram sendMessage>")
}
