// Package convertkit manages subscribers and broadcasts on the ConvertKit
// email-list API.
package convertkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/provider"
)

const defaultBaseURL = "https://api.convertkit.com/v4"

// Provider implements provider.EmailList against the ConvertKit API.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewProvider creates a Provider with the default ConvertKit API URL.
func NewProvider(apiKey string, logger *slog.Logger) *Provider {
	return NewProviderWithURL(defaultBaseURL, apiKey, logger)
}

// NewProviderWithURL creates a Provider with a custom base URL (for testing).
func NewProviderWithURL(baseURL, apiKey string, logger *slog.Logger) *Provider {
	return &Provider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        logger.With("adapter", "convertkit"),
	}
}

type subscriberRequest struct {
	Email  string             `json:"email_address"`
	Fields map[string]*string `json:"fields,omitempty"`
	State  string             `json:"state,omitempty"`
}

type subscriberResponse struct {
	Subscriber struct {
		ID int64 `json:"id"`
	} `json:"subscriber"`
}

// UpsertSubscriber creates or updates the contact keyed by email address
// and returns the vendor-side id. The vendor treats a repeated upsert of
// the same email as an update, so redelivery is safe.
func (p *Provider) UpsertSubscriber(ctx context.Context, sub domain.Subscriber) (string, error) {
	const op = "convertkit.upsert_subscriber"

	body, err := p.do(ctx, op, http.MethodPost, "/subscribers", subscriberRequest{
		Email:  sub.Email,
		Fields: sub.Fields,
		State:  string(sub.State),
	})
	if err != nil {
		return "", err
	}

	var decoded subscriberResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", provider.Permanent(op, fmt.Errorf("decode response: %w", err))
	}
	if decoded.Subscriber.ID == 0 {
		return "", provider.Permanent(op, fmt.Errorf("response missing subscriber id"))
	}

	id := fmt.Sprintf("%d", decoded.Subscriber.ID)
	p.log.InfoContext(ctx, "subscriber upserted",
		slog.String("email", sub.Email),
		slog.String("subscriber_id", id),
	)
	return id, nil
}

type broadcastRequest struct {
	Email      string            `json:"email_address"`
	TemplateID string            `json:"email_template_id"`
	Fields     map[string]string `json:"substitutions,omitempty"`
	Reference  string            `json:"reference"`
}

// SendBroadcast sends one templated email to one user. The user id serves
// as the vendor-side reference, so the same send replayed carries the same
// reference.
func (p *Provider) SendBroadcast(ctx context.Context, toUserID uuid.UUID, email, templateID string, fields map[string]string) error {
	const op = "convertkit.send_broadcast"

	if email == "" {
		return provider.Permanent(op, fmt.Errorf("empty email address"))
	}
	if templateID == "" {
		return provider.Permanent(op, fmt.Errorf("empty template id"))
	}

	_, err := p.do(ctx, op, http.MethodPost, "/broadcasts", broadcastRequest{
		Email:      email,
		TemplateID: templateID,
		Fields:     fields,
		Reference:  toUserID.String(),
	})
	if err != nil {
		return err
	}

	p.log.InfoContext(ctx, "broadcast sent",
		slog.String("user_id", toUserID.String()),
		slog.String("template_id", templateID),
	)
	return nil
}

func (p *Provider) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, provider.Permanent(op, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, provider.Permanent(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("X-Kit-Api-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, provider.ClassifyStatus(op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Transient(op, fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
