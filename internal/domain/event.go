package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable, named message describing something that happened.
// Name is the dispatch key; Payload is the typed payload produced by the
// event registry; Raw is the payload exactly as it arrived on the wire.
// Events reference entities by id only, never by embedded objects —
// handlers must re-fetch current state before mutating.
type Event struct {
	ID            uuid.UUID
	Name          string
	CorrelationID string
	Payload       any
	Raw           json.RawMessage
	OccurredAt    time.Time
}

// NewEvent creates an Event with a fresh id and correlation id.
// Follow-up events emitted by handlers must use Follow instead so the
// correlation id survives across the whole pipeline run.
func NewEvent(name string, payload any, raw json.RawMessage) Event {
	return Event{
		ID:            uuid.New(),
		Name:          name,
		CorrelationID: uuid.New().String(),
		Payload:       payload,
		Raw:           raw,
		OccurredAt:    time.Now().UTC(),
	}
}

// Follow creates a follow-up event carrying the parent's correlation id.
func (e Event) Follow(name string, payload any, raw json.RawMessage) Event {
	return Event{
		ID:            uuid.New(),
		Name:          name,
		CorrelationID: e.CorrelationID,
		Payload:       payload,
		Raw:           raw,
		OccurredAt:    time.Now().UTC(),
	}
}
