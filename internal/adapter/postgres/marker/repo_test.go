package marker_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/marker"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/testhelper"
)

func newRepo(t *testing.T) *marker.Repo {
	t.Helper()
	return marker.New(testhelper.SetupTestDB(t))
}

func TestRepo_Claim_FirstWins(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()
	key := uuid.New().String()

	claimed, err := repo.Claim(ctx, "email.send-broadcast", key)
	if err != nil {
		t.Fatalf("Claim: unexpected error: %v", err)
	}
	if !claimed {
		t.Fatal("first Claim should succeed")
	}

	claimed, err = repo.Claim(ctx, "email.send-broadcast", key)
	if err != nil {
		t.Fatalf("second Claim: unexpected error: %v", err)
	}
	if claimed {
		t.Error("second Claim of the same key should report already claimed")
	}
}

func TestRepo_Claim_ScopedByHandler(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()
	key := uuid.New().String()

	if _, err := repo.Claim(ctx, "handler-a", key); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	claimed, err := repo.Claim(ctx, "handler-b", key)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed {
		t.Error("same key under a different handler should be claimable")
	}
}

func TestRepo_Exists(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()
	key := uuid.New().String()

	found, err := repo.Exists(ctx, "h", key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if found {
		t.Error("unclaimed key should not exist")
	}

	if _, err := repo.Claim(ctx, "h", key); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	found, err = repo.Exists(ctx, "h", key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !found {
		t.Error("claimed key should exist")
	}
}

func TestRepo_Release_AllowsReclaim(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()
	key := uuid.New().String()

	if _, err := repo.Claim(ctx, "h", key); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := repo.Release(ctx, "h", key); err != nil {
		t.Fatalf("Release: %v", err)
	}

	claimed, err := repo.Claim(ctx, "h", key)
	if err != nil {
		t.Fatalf("Claim after Release: %v", err)
	}
	if !claimed {
		t.Error("released key should be claimable again")
	}
}
