package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
	"github.com/coursekit/coursekit-backend/internal/provider"
)

// HandleResourceChat produces one completion over the message history and
// appends the exchange to the resource's chat history. The event id keys a
// durable marker so a redelivered event neither calls the provider again
// nor appends the exchange twice. Rate-limit and timeout failures stay
// retryable; the engine decides when to give up.
func (s *Set) HandleResourceChat(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.ResourceChatPayload](evt)
	if err != nil {
		return err
	}

	key := evt.ID.String()
	claimed, err := s.markers.Claim(ctx, evt.Name, key)
	if err != nil {
		return fmt.Errorf("claim chat marker: %w", err)
	}
	if !claimed {
		s.log.DebugContext(ctx, "chat completion already recorded",
			slog.String("event_id", key),
			slog.String("resource_id", p.ResourceID.String()),
		)
		return nil
	}

	fail := func(stage string, cause error) error {
		if relErr := s.markers.Release(ctx, evt.Name, key); relErr != nil {
			s.log.ErrorContext(ctx, "release chat marker failed", slog.String("error", relErr.Error()))
		}
		return fmt.Errorf("%s: %w", stage, cause)
	}

	messages := make([]provider.Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		messages = append(messages, provider.Message{Role: m.Role, Content: m.Content})
	}

	completion, err := s.chat.Complete(ctx, messages, p.WorkflowSelector)
	if err != nil {
		return fail("chat completion", err)
	}

	if _, err := s.resources.Update(ctx, p.ResourceID, func(r *domain.ContentResource) error {
		history, _ := r.Fields["chatHistory"].([]any)
		last := p.Messages[len(p.Messages)-1]
		history = append(history,
			map[string]any{"role": last.Role, "content": last.Content},
			map[string]any{"role": "assistant", "content": completion.Text},
		)
		r.Fields["chatHistory"] = history
		return nil
	}); err != nil {
		return fail("append chat history", err)
	}

	s.log.InfoContext(ctx, "chat completion recorded",
		slog.String("resource_id", p.ResourceID.String()),
		slog.String("user_id", p.UserID.String()),
		slog.String("workflow", p.WorkflowSelector),
		slog.String("model", completion.Model),
	)
	return nil
}
