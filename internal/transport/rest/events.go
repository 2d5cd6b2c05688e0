package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
	"github.com/coursekit/coursekit-backend/pkg/ctxutil"
)

// eventBus defines the minimal interface needed by EventHandler.
type eventBus interface {
	Emit(ctx context.Context, evt domain.Event) error
}

// EventHandler serves the event ingress endpoint.
type EventHandler struct {
	registry *event.Registry
	bus      eventBus
	log      *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(registry *event.Registry, bus eventBus, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		registry: registry,
		bus:      bus,
		log:      logger.With("handler", "events"),
	}
}

type publishRequest struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

type publishResponse struct {
	EventID       string `json:"eventId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Status        string `json:"status"`
}

type validationResponse struct {
	Error  string        `json:"error"`
	Fields []fieldDetail `json:"fields"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Publish handles POST /events. The 202 means accepted for processing,
// never that processing finished.
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	payload, err := h.registry.Validate(req.Name, req.Data)
	if err != nil {
		// Unknown names are accepted and logged, not rejected: producers
		// may run ahead of this deployment's registry.
		if errors.Is(err, event.ErrUnknownEvent) {
			h.log.WarnContext(r.Context(), "unhandled event name",
				slog.String("event", req.Name),
			)
			writeJSON(w, http.StatusAccepted, publishResponse{Status: "unhandled"})
			return
		}

		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			fields := make([]fieldDetail, 0, len(verr.Errors))
			for _, fe := range verr.Errors {
				fields = append(fields, fieldDetail{Field: fe.Field, Message: fe.Message})
			}
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
				Error:  "validation failed",
				Fields: fields,
			})
			return
		}

		h.log.ErrorContext(r.Context(), "validate event",
			slog.String("event", req.Name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	evt := domain.NewEvent(req.Name, payload, req.Data)
	ctx := ctxutil.WithCorrelationID(r.Context(), evt.CorrelationID)

	if err := h.bus.Emit(ctx, evt); err != nil {
		h.log.ErrorContext(ctx, "emit event",
			slog.String("event", req.Name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, publishResponse{
		EventID:       evt.ID.String(),
		CorrelationID: evt.CorrelationID,
		Status:        "accepted",
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
