package purchase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/purchase"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/testhelper"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

func newRepo(t *testing.T) (*purchase.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return purchase.New(pool), pool
}

func TestRepo_GetByID(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	userID := testhelper.SeedUser(t, pool)
	purchaseID, _ := testhelper.SeedCommerce(t, pool, userID)

	got, err := repo.GetByID(ctx, purchaseID)
	if err != nil {
		t.Fatalf("GetByID: unexpected error: %v", err)
	}
	if got.UserID != userID {
		t.Errorf("UserID: got %s, want %s", got.UserID, userID)
	}
	if got.Status != domain.PurchaseStatusValid {
		t.Errorf("Status: got %s, want %s", got.Status, domain.PurchaseStatusValid)
	}
	if got.MerchantChargeID == nil {
		t.Error("MerchantChargeID should be set")
	}
}

func TestRepo_GetByID_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_GetByChargeIdentifier(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	userID := testhelper.SeedUser(t, pool)
	purchaseID, chargeIdentifier := testhelper.SeedCommerce(t, pool, userID)

	got, err := repo.GetByChargeIdentifier(ctx, chargeIdentifier)
	if err != nil {
		t.Fatalf("GetByChargeIdentifier: unexpected error: %v", err)
	}
	if got.ID != purchaseID {
		t.Errorf("ID: got %s, want %s", got.ID, purchaseID)
	}

	_, err = repo.GetByChargeIdentifier(ctx, "ch_unknown")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown charge, got %v", err)
	}
}

func TestRepo_MarkRefunded_Idempotent(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	userID := testhelper.SeedUser(t, pool)
	purchaseID, _ := testhelper.SeedCommerce(t, pool, userID)

	changed, err := repo.MarkRefunded(ctx, purchaseID)
	if err != nil {
		t.Fatalf("MarkRefunded: unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("first MarkRefunded should report a change")
	}

	// redelivered refund event: transition already applied
	changed, err = repo.MarkRefunded(ctx, purchaseID)
	if err != nil {
		t.Fatalf("second MarkRefunded: unexpected error: %v", err)
	}
	if changed {
		t.Error("second MarkRefunded should be a no-op")
	}

	got, err := repo.GetByID(ctx, purchaseID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.PurchaseStatusRefunded {
		t.Errorf("Status: got %s, want %s", got.Status, domain.PurchaseStatusRefunded)
	}
}

func TestRepo_Create(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	userID := testhelper.SeedUser(t, pool)

	got, err := repo.Create(ctx, &domain.Purchase{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}
	if got.Status != domain.PurchaseStatusValid {
		t.Errorf("Status should default to valid, got %s", got.Status)
	}
	if got.MerchantChargeID != nil {
		t.Error("MerchantChargeID should be nil for a direct purchase")
	}
}
