package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProgressState is the completion state of a (resource, user) pair.
// The state machine is monotonic: not-started → in-progress → completed,
// no backward transition, idempotent completion.
type ProgressState string

const (
	ProgressNotStarted ProgressState = "not-started"
	ProgressInProgress ProgressState = "in-progress"
	ProgressCompleted  ProgressState = "completed"
)

func (s ProgressState) IsValid() bool {
	switch s {
	case ProgressNotStarted, ProgressInProgress, ProgressCompleted:
		return true
	}
	return false
}

// rank orders states for monotonic comparison.
func (s ProgressState) rank() int {
	switch s {
	case ProgressInProgress:
		return 1
	case ProgressCompleted:
		return 2
	}
	return 0
}

// ResourceProgress is one row per (resource, user) pair.
type ResourceProgress struct {
	ResourceID  uuid.UUID
	UserID      uuid.UUID
	State       ProgressState
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Advance moves progress toward target and reports whether anything
// changed. A target at or below the current state is a no-op, never an
// error — this is what absorbs out-of-order delivery ("completed" arriving
// before "in-progress" must not regress).
func (p *ResourceProgress) Advance(target ProgressState, now time.Time) bool {
	if target.rank() <= p.State.rank() {
		return false
	}
	p.State = target
	if target == ProgressCompleted {
		at := now.UTC()
		p.CompletedAt = &at
	}
	p.UpdatedAt = now.UTC()
	return true
}
