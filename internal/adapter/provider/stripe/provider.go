// Package stripe talks to the Stripe-compatible payment processor API.
// Every mutating request carries an idempotency key derived from the
// charge, so a redelivered refund event reaches the processor as the same
// logical request.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coursekit/coursekit-backend/internal/provider"
)

const defaultBaseURL = "https://api.stripe.com/v1"

// Provider implements provider.Merchant against the Stripe API.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewProvider creates a Provider with the default Stripe API URL.
func NewProvider(apiKey string, logger *slog.Logger) *Provider {
	return NewProviderWithURL(defaultBaseURL, apiKey, logger)
}

// NewProviderWithURL creates a Provider with a custom base URL (for testing).
func NewProviderWithURL(baseURL, apiKey string, logger *slog.Logger) *Provider {
	return &Provider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		log:        logger.With("adapter", "stripe"),
	}
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ProcessRefund refunds a charge. A charge the processor already refunded
// reports AlreadyRefunded instead of failing, so replays converge.
func (p *Provider) ProcessRefund(ctx context.Context, chargeID string) (provider.RefundResult, error) {
	const op = "stripe.refund"

	if chargeID == "" {
		return provider.RefundResult{}, provider.Permanent(op, fmt.Errorf("empty charge id"))
	}

	form := url.Values{"charge": {chargeID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/refunds", strings.NewReader(form.Encode()))
	if err != nil {
		return provider.RefundResult{}, provider.Permanent(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", "refund-"+chargeID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return provider.RefundResult{}, provider.Transient(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.RefundResult{}, provider.Transient(op, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode == http.StatusBadRequest {
		var decoded errorResponse
		if json.Unmarshal(body, &decoded) == nil && decoded.Error.Code == "charge_already_refunded" {
			p.log.InfoContext(ctx, "charge already refunded", slog.String("charge_id", chargeID))
			return provider.RefundResult{AlreadyRefunded: true}, nil
		}
		return provider.RefundResult{}, provider.Permanent(op, fmt.Errorf("%s", decoded.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return provider.RefundResult{}, provider.ClassifyStatus(op, resp.StatusCode)
	}

	var refund refundResponse
	if err := json.Unmarshal(body, &refund); err != nil {
		return provider.RefundResult{}, provider.Permanent(op, fmt.Errorf("decode response: %w", err))
	}

	p.log.InfoContext(ctx, "refund processed",
		slog.String("charge_id", chargeID),
		slog.String("refund_id", refund.ID),
	)
	return provider.RefundResult{RefundID: refund.ID}, nil
}
