package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/merchant"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedUser creates a user row and returns its id.
func SeedUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	id := uuid.New()
	suffix := uniqueSuffix()
	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, email, name) VALUES ($1, $2, $3)`,
		id, "testuser-"+suffix+"@example.com", "Test User "+suffix,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedUser: %v", err)
	}
	return id
}

// SeedResource creates a content resource of the given type in state created.
func SeedResource(t *testing.T, pool *pgxpool.Pool, rtype domain.ResourceType) domain.ContentResource {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	r := domain.ContentResource{
		ID:        uuid.New(),
		Type:      rtype,
		Fields:    map[string]any{"title": "seed " + uniqueSuffix()},
		State:     domain.StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO content_resources (id, type, fields, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, string(r.Type), r.Fields, string(r.State), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedResource: %v", err)
	}
	return r
}

// SeedCommerce creates a merchant account, customer, product and charge for
// userID, plus a valid purchase backed by the charge. Returns the purchase
// id and the processor-side charge identifier.
func SeedCommerce(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) (purchaseID uuid.UUID, chargeIdentifier string) {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	accountID := uuid.New()
	customerID := uuid.New()
	productRowID := uuid.New()
	chargeID := uuid.New()
	purchaseID = uuid.New()
	chargeIdentifier = "ch_" + suffix

	exec := func(sql string, args ...any) {
		t.Helper()
		if _, err := pool.Exec(ctx, sql, args...); err != nil {
			t.Fatalf("testhelper: SeedCommerce: %v", err)
		}
	}

	exec(`INSERT INTO merchant_accounts (id, label, identifier, status) VALUES ($1, $2, $3, 1)`,
		accountID, "test account", "acct_"+suffix)
	exec(`INSERT INTO merchant_customers (id, user_id, merchant_account_id, identifier, status) VALUES ($1, $2, $3, $4, 1)`,
		customerID, userID, accountID, "cus_"+suffix)
	exec(`INSERT INTO merchant_products (id, product_id, merchant_account_id, identifier, status) VALUES ($1, $2, $3, $4, 1)`,
		productRowID, uuid.New(), accountID, "prod_"+suffix)
	if _, err := merchant.New(pool).CreateCharge(ctx, &domain.MerchantCharge{
		ID:                 chargeID,
		UserID:             userID,
		MerchantAccountID:  accountID,
		MerchantCustomerID: customerID,
		MerchantProductID:  productRowID,
		Identifier:         chargeIdentifier,
		Status:             domain.MerchantStatusActive,
	}); err != nil {
		t.Fatalf("testhelper: SeedCommerce: %v", err)
	}
	exec(`INSERT INTO purchases (id, user_id, product_id, merchant_charge_id, status) VALUES ($1, $2, $3, $4, 'valid')`,
		purchaseID, userID, uuid.New(), chargeID)

	return purchaseID, chargeIdentifier
}
