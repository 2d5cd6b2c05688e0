package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
	"github.com/coursekit/coursekit-backend/pkg/ctxutil"
)

// WebhookHandler normalizes vendor callbacks into internal event
// envelopes and publishes them to the bus. Vendors see plain 200s;
// everything async happens behind the engine.
type WebhookHandler struct {
	registry *event.Registry
	bus      eventBus
	log      *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(registry *event.Registry, bus eventBus, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		registry: registry,
		bus:      bus,
		log:      logger.With("handler", "webhooks"),
	}
}

// transcriptionCallback is the transcription vendor's completion body.
// Tag round-trips the video resource id we sent with the job request.
type transcriptionCallback struct {
	RequestID string `json:"request_id"`
	Tag       string `json:"tag"`
	Results   struct {
		Transcript string `json:"transcript"`
		SRT        string `json:"srt"`
	} `json:"results"`
}

// Transcription handles POST /webhooks/transcription.
func (h *WebhookHandler) Transcription(w http.ResponseWriter, r *http.Request) {
	var cb transcriptionCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	videoID, err := uuid.Parse(cb.Tag)
	if err != nil {
		writeError(w, http.StatusBadRequest, "tag is not a resource id")
		return
	}

	payload := event.TranscriptReadyPayload{
		VideoResourceID: videoID,
		Transcript:      cb.Results.Transcript,
		SRT:             cb.Results.SRT,
	}

	h.publish(w, r, event.TranscriptReady, payload)
}

// ocrCallback is the OCR vendor's completion body.
type ocrCallback struct {
	ScreenshotURL *string `json:"screenshot_url"`
	Text          string  `json:"text"`
	ResourceID    string  `json:"resource_id"`
}

// OCR handles POST /webhooks/ocr.
func (h *WebhookHandler) OCR(w http.ResponseWriter, r *http.Request) {
	var cb ocrCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload := event.OCRWebhookPayload{
		ScreenshotURL: cb.ScreenshotURL,
		OCRedText:     cb.Text,
		ResourceID:    cb.ResourceID,
	}

	h.publish(w, r, event.OCRWebhook, payload)
}

// publish runs the normalized payload through the registry so webhook
// bodies obey the same schemas as directly published events, then emits.
func (h *WebhookHandler) publish(w http.ResponseWriter, r *http.Request, name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	typed, err := h.registry.Validate(name, raw)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.log.WarnContext(r.Context(), "webhook payload rejected",
				slog.String("event", name),
				slog.String("error", verr.Error()),
			)
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		h.log.ErrorContext(r.Context(), "validate webhook payload",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	evt := domain.NewEvent(name, typed, raw)
	ctx := ctxutil.WithCorrelationID(r.Context(), evt.CorrelationID)

	if err := h.bus.Emit(ctx, evt); err != nil {
		h.log.ErrorContext(ctx, "emit webhook event",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}

	writeJSON(w, http.StatusOK, publishResponse{
		EventID:       evt.ID.String(),
		CorrelationID: evt.CorrelationID,
		Status:        "accepted",
	})
}
