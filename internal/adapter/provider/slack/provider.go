// Package slack posts operational notices to a team chat webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coursekit/coursekit-backend/internal/provider"
)

// Provider implements provider.Messaging over an incoming webhook.
type Provider struct {
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

// NewProvider creates a Provider posting to webhookURL.
func NewProvider(webhookURL string, logger *slog.Logger) *Provider {
	return &Provider{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logger.With("adapter", "slack"),
	}
}

type message struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Notify posts text to the channel. Notifications are best effort: callers
// log a failed notify and move on, they never retry or dead-letter over it.
func (p *Provider) Notify(ctx context.Context, channel, text string) error {
	const op = "slack.notify"

	raw, err := json.Marshal(message{Channel: channel, Text: text})
	if err != nil {
		return provider.Permanent(op, fmt.Errorf("encode message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return provider.Permanent(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return provider.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.ClassifyStatus(op, resp.StatusCode)
	}

	p.log.DebugContext(ctx, "notice posted", slog.String("channel", channel))
	return nil
}
