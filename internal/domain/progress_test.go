package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func newProgress(state ProgressState) ResourceProgress {
	return ResourceProgress{
		ResourceID: uuid.New(),
		UserID:     uuid.New(),
		State:      state,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

func TestResourceProgress_Advance_Forward(t *testing.T) {
	t.Parallel()

	p := newProgress(ProgressNotStarted)
	now := time.Now()

	if !p.Advance(ProgressInProgress, now) {
		t.Fatal("not-started → in-progress should change state")
	}
	if p.State != ProgressInProgress {
		t.Fatalf("state = %s", p.State)
	}
	if p.CompletedAt != nil {
		t.Fatal("CompletedAt must stay nil before completion")
	}

	if !p.Advance(ProgressCompleted, now) {
		t.Fatal("in-progress → completed should change state")
	}
	if p.State != ProgressCompleted {
		t.Fatalf("state = %s", p.State)
	}
	if p.CompletedAt == nil {
		t.Fatal("CompletedAt must be set on completion")
	}
}

func TestResourceProgress_Advance_NoRegression(t *testing.T) {
	t.Parallel()

	// "completed" arriving before "in-progress" must not regress.
	p := newProgress(ProgressNotStarted)
	now := time.Now()

	if !p.Advance(ProgressCompleted, now) {
		t.Fatal("skipping straight to completed is allowed")
	}
	completedAt := p.CompletedAt

	if p.Advance(ProgressInProgress, now.Add(time.Minute)) {
		t.Fatal("in-progress after completed must be a no-op")
	}
	if p.State != ProgressCompleted {
		t.Fatalf("state regressed to %s", p.State)
	}
	if p.CompletedAt != completedAt {
		t.Fatal("CompletedAt must not change on no-op")
	}
}

func TestResourceProgress_Advance_IdempotentCompletion(t *testing.T) {
	t.Parallel()

	p := newProgress(ProgressInProgress)
	now := time.Now()

	if !p.Advance(ProgressCompleted, now) {
		t.Fatal("first completion should change state")
	}
	if p.Advance(ProgressCompleted, now.Add(time.Hour)) {
		t.Fatal("re-marking completed must be a no-op, not an error")
	}
}
