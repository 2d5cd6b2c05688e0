package resource_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/resource"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/testhelper"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

func newRepo(t *testing.T) (*resource.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return resource.New(pool), pool
}

func assertIsDomainError(t *testing.T, err, want error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %v, got nil", want)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected error %v, got %v", want, err)
	}
}

// ---------------------------------------------------------------------------
// Create / Get
// ---------------------------------------------------------------------------

func TestRepo_Create_HappyPath(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	input := &domain.ContentResource{
		ID:     uuid.New(),
		Type:   domain.ResourceTypeVideo,
		Fields: map[string]any{"url": "https://cdn.example.com/v1.mp4"},
	}

	got, err := repo.Create(ctx, input)
	if err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}
	if got.ID != input.ID {
		t.Errorf("ID mismatch: got %s, want %s", got.ID, input.ID)
	}
	if got.State != domain.StateCreated {
		t.Errorf("State: got %s, want %s", got.State, domain.StateCreated)
	}
	if got.Field("url") != "https://cdn.example.com/v1.mp4" {
		t.Errorf("Field(url): got %q", got.Field("url"))
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
}

func TestRepo_Create_Duplicate(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedResource(t, pool, domain.ResourceTypeLesson)

	_, err := repo.Create(ctx, &domain.ContentResource{ID: seeded.ID, Type: domain.ResourceTypeLesson})
	assertIsDomainError(t, err, domain.ErrAlreadyExists)
}

func TestRepo_Create_DuplicateSourceKey(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	key := "shot-" + uuid.NewString()
	first := &domain.ContentResource{
		ID:     uuid.New(),
		Type:   domain.ResourceTypeScreenshot,
		Fields: map[string]any{"sourceKey": key},
	}
	if _, err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}

	// A second row with the same (type, sourceKey) loses to the winner,
	// even though its own id is fresh.
	second := &domain.ContentResource{
		ID:     uuid.New(),
		Type:   domain.ResourceTypeScreenshot,
		Fields: map[string]any{"sourceKey": key},
	}
	_, err := repo.Create(ctx, second)
	assertIsDomainError(t, err, domain.ErrAlreadyExists)

	// Same key under a different type is a different resource.
	other := &domain.ContentResource{
		ID:     uuid.New(),
		Type:   domain.ResourceTypeTranscript,
		Fields: map[string]any{"sourceKey": key},
	}
	if _, err := repo.Create(ctx, other); err != nil {
		t.Fatalf("Create with different type: unexpected error: %v", err)
	}

	got, err := repo.FindByFieldValue(ctx, domain.ResourceTypeScreenshot, "sourceKey", key)
	if err != nil {
		t.Fatalf("FindByFieldValue: unexpected error: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("find returned %s, want the first row %s", got.ID, first.ID)
	}
}

func TestRepo_List_FilterAndPaginate(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	// The container DB is shared, so a unique title tag isolates this
	// test's rows from concurrent ones.
	tag := "lst-" + uuid.NewString()[:8]
	for i, rtype := range []domain.ResourceType{
		domain.ResourceTypeLesson, domain.ResourceTypeLesson, domain.ResourceTypeVideo,
	} {
		_, err := repo.Create(ctx, &domain.ContentResource{
			ID:     uuid.New(),
			Type:   rtype,
			Fields: map[string]any{"title": fmt.Sprintf("%s item %d", tag, i)},
		})
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	search := tag
	got, total, err := repo.List(ctx, resource.Filter{
		Types:  []domain.ResourceType{domain.ResourceTypeLesson},
		Search: &search,
	})
	if err != nil {
		t.Fatalf("List: unexpected error: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("filtered by type: total=%d len=%d, want 2/2", total, len(got))
	}
	for _, r := range got {
		if r.Type != domain.ResourceTypeLesson {
			t.Errorf("unexpected type %s in filtered list", r.Type)
		}
	}

	// Pagination: total counts all matches, the page is capped.
	got, total, err = repo.List(ctx, resource.Filter{Search: &search, Limit: 2})
	if err != nil {
		t.Fatalf("List page: unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(got) != 2 {
		t.Errorf("page size = %d, want 2", len(got))
	}
}

func TestRepo_GetByID_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	assertIsDomainError(t, err, domain.ErrNotFound)
}

func TestRepo_FindByFieldValue(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	eventID := uuid.New().String()
	created, err := repo.Create(ctx, &domain.ContentResource{
		ID:     uuid.New(),
		Type:   domain.ResourceTypeScreenshot,
		Fields: map[string]any{"sourceEventId": eventID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.FindByFieldValue(ctx, domain.ResourceTypeScreenshot, "sourceEventId", eventID)
	if err != nil {
		t.Fatalf("FindByFieldValue: unexpected error: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID mismatch: got %s, want %s", got.ID, created.ID)
	}

	_, err = repo.FindByFieldValue(ctx, domain.ResourceTypeScreenshot, "sourceEventId", uuid.New().String())
	assertIsDomainError(t, err, domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Update / TransitionState
// ---------------------------------------------------------------------------

func TestRepo_Update_MutatesFields(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedResource(t, pool, domain.ResourceTypeTranscript)

	got, err := repo.Update(ctx, seeded.ID, func(r *domain.ContentResource) error {
		r.Fields["transcript"] = "hello world"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: unexpected error: %v", err)
	}
	if got.Field("transcript") != "hello world" {
		t.Errorf("Field(transcript): got %q", got.Field("transcript"))
	}

	reloaded, err := repo.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Field("transcript") != "hello world" {
		t.Error("mutation not persisted")
	}
}

func TestRepo_Update_MutateErrorRollsBack(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedResource(t, pool, domain.ResourceTypePost)
	wantErr := errors.New("nope")

	_, err := repo.Update(ctx, seeded.ID, func(r *domain.ContentResource) error {
		r.Fields["poison"] = "x"
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	reloaded, err := repo.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if _, ok := reloaded.Fields["poison"]; ok {
		t.Error("rolled-back mutation leaked into the row")
	}
}

func TestRepo_TransitionState_LegalChain(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedResource(t, pool, domain.ResourceTypeVideo)

	for _, target := range []domain.ProcessingState{
		domain.StateProviderRequested,
		domain.StateProviderResponded,
		domain.StateReviewPending,
		domain.StatePublished,
	} {
		got, err := repo.TransitionState(ctx, seeded.ID, target)
		if err != nil {
			t.Fatalf("TransitionState(%s): unexpected error: %v", target, err)
		}
		if got.State != target {
			t.Fatalf("State: got %s, want %s", got.State, target)
		}
	}
}

func TestRepo_TransitionState_SameStateIsNoOp(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedResource(t, pool, domain.ResourceTypeVideo)

	if _, err := repo.TransitionState(ctx, seeded.ID, domain.StateProviderRequested); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	got, err := repo.TransitionState(ctx, seeded.ID, domain.StateProviderRequested)
	if err != nil {
		t.Fatalf("repeated transition should be a no-op success, got %v", err)
	}
	if got.State != domain.StateProviderRequested {
		t.Errorf("State: got %s", got.State)
	}
}

func TestRepo_TransitionState_IllegalMove(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedResource(t, pool, domain.ResourceTypeVideo)

	_, err := repo.TransitionState(ctx, seeded.ID, domain.StatePublished)
	assertIsDomainError(t, err, domain.ErrConflict)

	// state untouched after the failed move
	reloaded, err := repo.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.State != domain.StateCreated {
		t.Errorf("State: got %s, want %s", reloaded.State, domain.StateCreated)
	}
}
