package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
)

// HandleLessonCompleted advances the (lesson, user) progress row to
// completed. The progress state machine is monotonic, so redelivery and
// out-of-order arrival are absorbed by the store.
func (s *Set) HandleLessonCompleted(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.LessonCompletedPayload](evt)
	if err != nil {
		return err
	}

	if _, err := s.progress.Advance(ctx, p.LessonID, p.UserID, domain.ProgressCompleted); err != nil {
		return fmt.Errorf("advance progress: %w", err)
	}

	s.log.InfoContext(ctx, "lesson completed",
		slog.String("lesson_id", p.LessonID.String()),
		slog.String("user_id", p.UserID.String()),
	)
	return nil
}

// HandleNoProgressMade sends one nudge email per (user, resource). The
// durable marker is the idempotency guard: once a nudge went out, every
// redelivery finds the claim and does nothing.
func (s *Set) HandleNoProgressMade(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.NoProgressMadePayload](evt)
	if err != nil {
		return err
	}

	key := p.UserID.String() + ":" + p.ResourceID.String()
	claimed, err := s.markers.Claim(ctx, evt.Name, key)
	if err != nil {
		return fmt.Errorf("claim nudge marker: %w", err)
	}
	if !claimed {
		s.log.DebugContext(ctx, "nudge already sent",
			slog.String("user_id", p.UserID.String()),
			slog.String("resource_id", p.ResourceID.String()),
		)
		return nil
	}

	fields := map[string]string{"resourceId": p.ResourceID.String()}
	if err := s.emailList.SendBroadcast(ctx, p.UserID, p.Email, p.TemplateID, fields); err != nil {
		// The email never went out; free the claim so a retry can send it.
		if relErr := s.markers.Release(ctx, evt.Name, key); relErr != nil {
			s.log.ErrorContext(ctx, "release nudge marker failed", slog.String("error", relErr.Error()))
		}
		return fmt.Errorf("send nudge: %w", err)
	}
	return nil
}
