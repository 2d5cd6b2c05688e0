// Package deepgram submits transcription work to the Deepgram API.
// Results never come back synchronously: Deepgram calls our webhook when a
// job finishes, and the webhook arrives as a transcript-ready event.
package deepgram

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

	"github.com/coursekit/coursekit-backend/internal/provider"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

// Provider implements provider.Transcription against the Deepgram API.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewProvider creates a Provider with the default Deepgram API URL.
func NewProvider(apiKey string, logger *slog.Logger) *Provider {
	return NewProviderWithURL(defaultBaseURL, apiKey, logger)
}

// NewProviderWithURL creates a Provider with a custom base URL (for testing).
func NewProviderWithURL(baseURL, apiKey string, logger *slog.Logger) *Provider {
	return &Provider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.With("adapter", "deepgram"),
	}
}

type transcriptRequest struct {
	URL      string `json:"url"`
	Callback string `json:"callback"`
	Tag      string `json:"tag"`
}

type jobResponse struct {
	RequestID string `json:"request_id"`
}

// RequestTranscript submits mediaURL for asynchronous transcription.
// The resource id rides along as the job tag so the webhook can be routed
// back to the right resource.
func (p *Provider) RequestTranscript(ctx context.Context, resourceID uuid.UUID, mediaURL, callbackURL string) (string, error) {
	const op = "deepgram.transcript"

	body := transcriptRequest{URL: mediaURL, Callback: callbackURL, Tag: resourceID.String()}
	jobID, err := p.submit(ctx, op, p.baseURL+"/listen", body)
	if err != nil {
		return "", err
	}

	p.log.InfoContext(ctx, "transcript requested",
		slog.String("resource_id", resourceID.String()),
		slog.String("job_id", jobID),
	)
	return jobID, nil
}

type splitPointsRequest struct {
	Tag        string `json:"tag"`
	Transcript string `json:"transcript"`
}

// RequestSplitPoints asks for chapter split-point candidates over an
// existing transcript. Like transcription, the answer arrives via webhook.
func (p *Provider) RequestSplitPoints(ctx context.Context, resourceID string, transcript string) (string, error) {
	const op = "deepgram.split_points"

	if transcript == "" {
		return "", provider.Permanent(op, fmt.Errorf("empty transcript"))
	}

	body := splitPointsRequest{Tag: resourceID, Transcript: transcript}
	jobID, err := p.submit(ctx, op, p.baseURL+"/analyze", body)
	if err != nil {
		return "", err
	}

	p.log.InfoContext(ctx, "split points requested",
		slog.String("resource_id", resourceID),
		slog.String("job_id", jobID),
	)
	return jobID, nil
}

func (p *Provider) submit(ctx context.Context, op, url string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", provider.Permanent(op, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", provider.Permanent(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", provider.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", provider.ClassifyStatus(op, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", provider.Transient(op, fmt.Errorf("read body: %w", err))
	}

	var job jobResponse
	if err := json.Unmarshal(respBody, &job); err != nil {
		return "", provider.Permanent(op, fmt.Errorf("decode response: %w", err))
	}
	if job.RequestID == "" {
		return "", provider.Permanent(op, fmt.Errorf("response missing request_id"))
	}
	return job.RequestID, nil
}
