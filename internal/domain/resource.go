package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType identifies the kind of content resource.
type ResourceType string

const (
	ResourceTypeLesson     ResourceType = "lesson"
	ResourceTypePost       ResourceType = "post"
	ResourceTypeTranscript ResourceType = "transcript"
	ResourceTypeVideo      ResourceType = "video"
	ResourceTypePage       ResourceType = "page"
	ResourceTypeEmail      ResourceType = "email"
	ResourceTypePrompt     ResourceType = "prompt"
	ResourceTypeScreenshot ResourceType = "screenshot"
)

func (t ResourceType) IsValid() bool {
	switch t {
	case ResourceTypeLesson, ResourceTypePost, ResourceTypeTranscript,
		ResourceTypeVideo, ResourceTypePage, ResourceTypeEmail,
		ResourceTypePrompt, ResourceTypeScreenshot:
		return true
	}
	return false
}

// ProcessingState is the pipeline state of a content resource.
// Published and failed are terminal for a pipeline run; a new run of the
// same pipeline starts over from created.
type ProcessingState string

const (
	StateCreated           ProcessingState = "created"
	StateProviderRequested ProcessingState = "provider-requested"
	StateProviderResponded ProcessingState = "provider-responded"
	StateReviewPending     ProcessingState = "review-pending"
	StatePublished         ProcessingState = "published"
	StateFailed            ProcessingState = "failed"
)

func (s ProcessingState) IsValid() bool {
	switch s {
	case StateCreated, StateProviderRequested, StateProviderResponded,
		StateReviewPending, StatePublished, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s ProcessingState) Terminal() bool {
	return s == StatePublished || s == StateFailed
}

// CanTransition reports whether s → target is a legal move.
// Failed is reachable from any non-terminal state, and
// review-pending → provider-requested is allowed as a retry loop.
func (s ProcessingState) CanTransition(target ProcessingState) bool {
	if target == StateFailed {
		return !s.Terminal()
	}
	switch s {
	case StateCreated:
		return target == StateProviderRequested
	case StateProviderRequested:
		return target == StateProviderResponded
	case StateProviderResponded:
		return target == StateReviewPending
	case StateReviewPending:
		return target == StatePublished || target == StateProviderRequested
	}
	return false
}

// Transition validates and returns the new state.
// An illegal move where the target is already the current state is a no-op;
// any other illegal move returns a ConflictError.
func (s ProcessingState) Transition(target ProcessingState) (ProcessingState, error) {
	if s == target {
		return s, nil
	}
	if !s.CanTransition(target) {
		return s, NewConflictError("content_resource", string(s), string(target))
	}
	return target, nil
}

// ContentResource is the platform's generic unit of authored content.
// Fields is an open property bag (title, body, mediaUrl, transcript, ocr
// text, chat history...) whose interpretation depends on Type.
// Resources are never deleted by the workflow engine; only state moves.
type ContentResource struct {
	ID          uuid.UUID
	Type        ResourceType
	Fields      map[string]any
	State       ProcessingState
	CreatedByID *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Field returns a string-valued field, or "" if absent or not a string.
func (r *ContentResource) Field(key string) string {
	if r.Fields == nil {
		return ""
	}
	v, _ := r.Fields[key].(string)
	return v
}
