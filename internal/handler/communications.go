package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
)

// HandleEmailBroadcast upserts the recipient on the email list and sends
// one templated email. The event id keys the durable marker, so each
// logical send happens once no matter how often the event is delivered.
func (s *Set) HandleEmailBroadcast(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.EmailBroadcastPayload](evt)
	if err != nil {
		return err
	}

	key := evt.ID.String()
	claimed, err := s.markers.Claim(ctx, evt.Name, key)
	if err != nil {
		return fmt.Errorf("claim broadcast marker: %w", err)
	}
	if !claimed {
		s.log.DebugContext(ctx, "broadcast already sent",
			slog.String("event_id", key),
			slog.String("user_id", p.ToUserID.String()),
		)
		return nil
	}

	fail := func(stage string, cause error) error {
		if relErr := s.markers.Release(ctx, evt.Name, key); relErr != nil {
			s.log.ErrorContext(ctx, "release broadcast marker failed", slog.String("error", relErr.Error()))
		}
		return fmt.Errorf("%s: %w", stage, cause)
	}

	fields := make(map[string]*string, len(p.Fields))
	for k, v := range p.Fields {
		val := v
		fields[k] = &val
	}
	if _, err := s.emailList.UpsertSubscriber(ctx, domain.Subscriber{
		Email:  p.Email,
		Fields: fields,
		State:  domain.SubscriberStateActive,
	}); err != nil {
		return fail("upsert subscriber", err)
	}

	if err := s.emailList.SendBroadcast(ctx, p.ToUserID, p.Email, p.TemplateID, p.Fields); err != nil {
		return fail("send broadcast", err)
	}

	s.log.InfoContext(ctx, "broadcast sent",
		slog.String("user_id", p.ToUserID.String()),
		slog.String("template_id", p.TemplateID),
	)
	return nil
}

// HandleInstructorInvite records a completed instructor invitation on the
// email list and tells chat-ops. The vendor-side upsert is idempotent by
// email, so the handler needs no marker.
func (s *Set) HandleInstructorInvite(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.InstructorInvitePayload](evt)
	if err != nil {
		return err
	}

	fields := map[string]*string{"inviteId": &p.InviteID}
	if p.FirstName != "" {
		fields["firstName"] = &p.FirstName
	}
	if _, err := s.emailList.UpsertSubscriber(ctx, domain.Subscriber{
		Email:  p.Email,
		Fields: fields,
		State:  domain.SubscriberStateActive,
	}); err != nil {
		return fmt.Errorf("upsert instructor: %w", err)
	}

	s.notifyOps(ctx, fmt.Sprintf("Instructor invite %s completed for %s", p.InviteID, p.Email))

	s.log.InfoContext(ctx, "instructor invite recorded",
		slog.String("invite_id", p.InviteID),
	)
	return nil
}
