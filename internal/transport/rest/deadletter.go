package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/deadletter"
	"github.com/coursekit/coursekit-backend/internal/auth"
	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
)

// deadLetterRepo defines the minimal interface needed by DeadLetterHandler.
type deadLetterRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*deadletter.Entry, error)
	List(ctx context.Context, eventName string, limit int) ([]*deadletter.Entry, error)
	MarkRequeued(ctx context.Context, id uuid.UUID) (bool, error)
}

// DeadLetterHandler serves the dead-letter admin endpoints.
type DeadLetterHandler struct {
	repo     deadLetterRepo
	registry *event.Registry
	bus      eventBus
	log      *slog.Logger
}

// NewDeadLetterHandler creates a DeadLetterHandler.
func NewDeadLetterHandler(repo deadLetterRepo, registry *event.Registry, bus eventBus, logger *slog.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{
		repo:     repo,
		registry: registry,
		bus:      bus,
		log:      logger.With("handler", "deadletter"),
	}
}

type deadLetterItem struct {
	ID            string     `json:"id"`
	EventID       string     `json:"eventId"`
	EventName     string     `json:"eventName"`
	CorrelationID string     `json:"correlationId"`
	Handler       string     `json:"handler"`
	Attempts      int        `json:"attempts"`
	Error         string     `json:"error"`
	CreatedAt     time.Time  `json:"createdAt"`
	RequeuedAt    *time.Time `json:"requeuedAt,omitempty"`
}

// List returns pending dead letters, newest first.
// GET /admin/dead-letters?event=refund-processed&limit=50
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	eventName := r.URL.Query().Get("event")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.repo.List(r.Context(), eventName, limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "list dead letters", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	items := make([]deadLetterItem, len(entries))
	for i, e := range entries {
		items[i] = toDeadLetterItem(e)
	}
	writeJSON(w, http.StatusOK, items)
}

// Requeue republishes a dead-lettered event to the bus and marks the row
// requeued. Requeuing twice is a conflict; at-least-once redelivery is the
// handlers' problem, double requeue is an operator mistake worth surfacing.
// POST /admin/dead-letters/{id}/requeue
func (h *DeadLetterHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dead letter id")
		return
	}

	entry, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if domain.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "dead letter not found")
			return
		}
		h.log.ErrorContext(r.Context(), "get dead letter", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	changed, err := h.repo.MarkRequeued(r.Context(), id)
	if err != nil {
		h.log.ErrorContext(r.Context(), "mark requeued", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !changed {
		writeError(w, http.StatusConflict, "dead letter already requeued")
		return
	}

	payload, err := h.registry.Validate(entry.EventName, entry.Payload)
	if err != nil {
		// Schema may have moved on since the event died. The row stays
		// marked so operators see it was handled, the payload is logged.
		h.log.ErrorContext(r.Context(), "dead letter payload no longer valid",
			slog.String("event", entry.EventName),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnprocessableEntity, "payload no longer validates")
		return
	}

	evt := domain.Event{
		ID:            entry.EventID,
		Name:          entry.EventName,
		CorrelationID: entry.CorrelationID,
		Payload:       payload,
		Raw:           entry.Payload,
		OccurredAt:    time.Now().UTC(),
	}

	if err := h.bus.Emit(r.Context(), evt); err != nil {
		h.log.ErrorContext(r.Context(), "requeue emit", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}

	writeJSON(w, http.StatusOK, publishResponse{
		EventID:       evt.ID.String(),
		CorrelationID: evt.CorrelationID,
		Status:        "requeued",
	})
}

func (h *DeadLetterHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	p, ok := auth.PrincipalFromCtx(r.Context())
	if !ok || p.Role != "admin" {
		writeError(w, http.StatusForbidden, "admin access required")
		return false
	}
	return true
}

func toDeadLetterItem(e *deadletter.Entry) deadLetterItem {
	return deadLetterItem{
		ID:            e.ID.String(),
		EventID:       e.EventID.String(),
		EventName:     e.EventName,
		CorrelationID: e.CorrelationID,
		Handler:       e.Handler,
		Attempts:      e.Attempts,
		Error:         e.Error,
		CreatedAt:     e.CreatedAt,
		RequeuedAt:    e.RequeuedAt,
	}
}
