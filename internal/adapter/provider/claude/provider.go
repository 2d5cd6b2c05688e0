// Package claude produces chat completions via the Anthropic API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/coursekit/coursekit-backend/internal/provider"
)

const defaultModel = "claude-sonnet-4-20250514"

// Provider implements provider.Chat against the Anthropic API.
// The workflow selector picks the system prompt, so one adapter serves
// every chat-driven workflow.
type Provider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	workflows map[string]string
	log       *slog.Logger
}

// NewProvider creates a Provider. workflows maps a workflow selector to
// its system prompt; model falls back to a default when empty.
func NewProvider(apiKey, model string, workflows map[string]string, logger *slog.Logger) *Provider {
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: 2048,
		workflows: workflows,
		log:       logger.With("adapter", "claude"),
	}
}

// Complete sends the message history and returns the model's reply.
func (p *Provider) Complete(ctx context.Context, messages []provider.Message, workflowSelector string) (provider.Completion, error) {
	const op = "claude.complete"

	if len(messages) == 0 {
		return provider.Completion{}, provider.Permanent(op, fmt.Errorf("empty message history"))
	}

	system, ok := p.workflows[workflowSelector]
	if !ok {
		return provider.Completion{}, provider.Permanent(op, fmt.Errorf("unknown workflow %q", workflowSelector))
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(messages)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return provider.Completion{}, classify(op, err)
	}
	if len(msg.Content) == 0 {
		return provider.Completion{}, provider.Transient(op, fmt.Errorf("empty response"))
	}

	p.log.InfoContext(ctx, "completion produced",
		slog.String("workflow", workflowSelector),
		slog.String("model", string(msg.Model)),
		slog.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	return provider.Completion{
		Text:  msg.Content[0].Text,
		Model: string(msg.Model),
	}, nil
}

func classify(op string, err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return provider.ClassifyStatus(op, apierr.StatusCode)
	}
	// network errors, timeouts, cancellation
	return provider.Transient(op, err)
}
