package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
)

// fieldSourceKey is the fields-bag key that makes find-or-create
// idempotent: every resource born from an event stores the key the event
// derives, and redelivery finds the row instead of inserting a second one.
const fieldSourceKey = "sourceKey"

// ocrKey derives the idempotency key for an OCR webhook. The screenshot
// URL pins the resource when present; otherwise the event id does (the id
// is stable across redeliveries of the same delivery).
func ocrKey(evt domain.Event, p event.OCRWebhookPayload) string {
	if p.ResourceID != "" {
		return p.ResourceID
	}
	if p.ScreenshotURL != nil && *p.ScreenshotURL != "" {
		return *p.ScreenshotURL
	}
	return evt.ID.String()
}

// HandleOCRWebhook finds or creates the screenshot resource for the
// webhook and attaches the OCRed text exactly once. Double delivery must
// not create a second resource and must not overwrite the text.
func (s *Set) HandleOCRWebhook(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.OCRWebhookPayload](evt)
	if err != nil {
		return err
	}

	key := ocrKey(evt, p)

	res, err := s.resources.FindByFieldValue(ctx, domain.ResourceTypeScreenshot, fieldSourceKey, key)
	if err != nil {
		if !domain.IsNotFound(err) {
			return fmt.Errorf("find screenshot resource: %w", err)
		}
		fields := map[string]any{fieldSourceKey: key}
		if p.ScreenshotURL != nil {
			fields["screenshotUrl"] = *p.ScreenshotURL
		}
		res, err = s.resources.Create(ctx, &domain.ContentResource{
			ID:     uuid.New(),
			Type:   domain.ResourceTypeScreenshot,
			Fields: fields,
		})
		if err != nil {
			// Lost a race with a concurrent delivery; the winner's row is the
			// resource.
			if domain.IsAlreadyExists(err) {
				res, err = s.resources.FindByFieldValue(ctx, domain.ResourceTypeScreenshot, fieldSourceKey, key)
			}
			if err != nil {
				return fmt.Errorf("create screenshot resource: %w", err)
			}
		}
	}

	if p.OCRedText != "" {
		if _, err := s.resources.Update(ctx, res.ID, func(r *domain.ContentResource) error {
			if r.Field("ocrText") != "" {
				return nil // first write wins
			}
			r.Fields["ocrText"] = p.OCRedText
			return nil
		}); err != nil {
			return fmt.Errorf("attach ocr text: %w", err)
		}
	}

	s.notifyOps(ctx, fmt.Sprintf("OCR result attached to screenshot resource %s", res.ID))
	return nil
}

// HandleSplitVideoPoints asks the transcription vendor for chapter split
// points over an existing transcript. The in-flight key collapses a burst
// of identical events into one provider round trip.
func (s *Set) HandleSplitVideoPoints(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.SplitVideoPayload](evt)
	if err != nil {
		return err
	}

	key := "split-points:" + p.ResourceID
	acquired, err := s.inflight.TryAcquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire in-flight key: %w", err)
	}
	if !acquired {
		s.log.DebugContext(ctx, "split points already in flight",
			slog.String("resource_id", p.ResourceID),
		)
		return nil
	}

	jobID, err := s.transcription.RequestSplitPoints(ctx, p.ResourceID, p.Transcript)
	if err != nil {
		// Nothing reached the vendor; free the slot so a retry can.
		if relErr := s.inflight.Release(ctx, key); relErr != nil {
			s.log.ErrorContext(ctx, "release in-flight key failed", slog.String("error", relErr.Error()))
		}
		return fmt.Errorf("request split points: %w", err)
	}
	// The slot stays held until its TTL: the vendor is now working, and a
	// redelivered event must not trigger a second request meanwhile.

	if resourceID, parseErr := uuid.Parse(p.ResourceID); parseErr == nil {
		if _, err := s.resources.Update(ctx, resourceID, func(r *domain.ContentResource) error {
			r.Fields["splitPointsJobId"] = jobID
			return nil
		}); err != nil && !domain.IsNotFound(err) {
			s.log.WarnContext(ctx, "record split job id failed", slog.String("error", err.Error()))
		}
	}

	s.log.InfoContext(ctx, "split points requested",
		slog.String("resource_id", p.ResourceID),
		slog.String("job_id", jobID),
	)
	return nil
}

// HandleVideoUploaded creates the video resource for a fresh upload and
// submits it for transcription. The media URL keys the find-or-create, so
// a redelivered upload event reuses the existing resource.
func (s *Set) HandleVideoUploaded(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.VideoUploadedPayload](evt)
	if err != nil {
		return err
	}

	res, err := s.resources.FindByFieldValue(ctx, domain.ResourceTypeVideo, fieldSourceKey, p.MediaURL)
	if err == nil {
		if res.State != domain.StateCreated {
			// Transcript already requested on a previous delivery.
			return nil
		}
	} else {
		if !domain.IsNotFound(err) {
			return fmt.Errorf("find video resource: %w", err)
		}
		fields := map[string]any{
			fieldSourceKey: p.MediaURL,
			"mediaUrl":     p.MediaURL,
		}
		if p.FileName != "" {
			fields["fileName"] = p.FileName
		}
		res, err = s.resources.Create(ctx, &domain.ContentResource{
			ID:          uuid.New(),
			Type:        domain.ResourceTypeVideo,
			Fields:      fields,
			CreatedByID: p.CreatedByID,
		})
		if err != nil {
			if domain.IsAlreadyExists(err) {
				return nil
			}
			return fmt.Errorf("create video resource: %w", err)
		}
	}

	jobID, err := s.transcription.RequestTranscript(ctx, res.ID, p.MediaURL, s.cfg.TranscriptCallbackURL)
	if err != nil {
		return fmt.Errorf("request transcript: %w", err)
	}

	if _, err := s.resources.Update(ctx, res.ID, func(r *domain.ContentResource) error {
		r.Fields["transcriptJobId"] = jobID
		next, terr := r.State.Transition(domain.StateProviderRequested)
		if terr != nil {
			return terr
		}
		r.State = next
		return nil
	}); err != nil {
		return fmt.Errorf("record transcript job: %w", err)
	}

	s.log.InfoContext(ctx, "video submitted for transcription",
		slog.String("resource_id", res.ID.String()),
		slog.String("job_id", jobID),
	)
	return nil
}

// HandleTranscriptReady attaches the vendor's transcript to the pipeline:
// the video resource advances to review-pending, a transcript resource is
// created alongside it, and a chat request for the AI summary follows.
func (s *Set) HandleTranscriptReady(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.TranscriptReadyPayload](evt)
	if err != nil {
		return err
	}

	video, err := s.resources.GetByID(ctx, p.VideoResourceID)
	if err != nil {
		return fmt.Errorf("video resource: %w", err)
	}

	// Advance only from provider-requested; a redelivered callback finds
	// the resource further along and leaves it alone.
	if video.State == domain.StateProviderRequested {
		if _, err := s.resources.TransitionState(ctx, video.ID, domain.StateProviderResponded); err != nil {
			return fmt.Errorf("advance video state: %w", err)
		}
		if _, err := s.resources.TransitionState(ctx, video.ID, domain.StateReviewPending); err != nil {
			return fmt.Errorf("advance video state: %w", err)
		}
	}

	createdTranscript := false
	transcript, err := s.resources.FindByFieldValue(ctx, domain.ResourceTypeTranscript, fieldSourceKey, video.ID.String())
	if err != nil {
		if !domain.IsNotFound(err) {
			return fmt.Errorf("find transcript resource: %w", err)
		}
		fields := map[string]any{
			fieldSourceKey:    video.ID.String(),
			"videoResourceId": video.ID.String(),
			"transcript":      p.Transcript,
		}
		if p.SRT != "" {
			fields["srt"] = p.SRT
		}
		transcript, err = s.resources.Create(ctx, &domain.ContentResource{
			ID:     uuid.New(),
			Type:   domain.ResourceTypeTranscript,
			Fields: fields,
		})
		if err != nil {
			if domain.IsAlreadyExists(err) {
				return nil
			}
			return fmt.Errorf("create transcript resource: %w", err)
		}
		createdTranscript = true
	}

	// The chat request follows only the first attachment; a redelivered
	// callback finds the transcript and stops here.
	if createdTranscript && s.emit != nil && video.CreatedByID != nil {
		follow := evt.Follow(event.ResourceChat, event.ResourceChatPayload{
			ResourceID: transcript.ID,
			UserID:     *video.CreatedByID,
			Messages: []event.ChatMessage{
				{Role: "user", Content: "Summarize this lesson transcript:\n\n" + p.Transcript},
			},
			WorkflowSelector: "summary",
		}, nil)
		if err := s.emit.Emit(ctx, follow); err != nil {
			return fmt.Errorf("emit chat request: %w", err)
		}
	}

	s.log.InfoContext(ctx, "transcript attached",
		slog.String("video_resource_id", video.ID.String()),
		slog.String("transcript_resource_id", transcript.ID.String()),
	)
	return nil
}
