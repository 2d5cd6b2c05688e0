// Package purchase implements the purchase side of the commerce ledger
// using PostgreSQL. Status changes are expressed as guarded single-row
// transitions, so replayed refund events cannot double-apply.
package purchase

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Repo provides purchase persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new purchase repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const columns = `id, user_id, product_id, merchant_charge_id, status, created_at`

// GetByID returns a purchase by primary key.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var p domain.Purchase
	var status string
	err := q.QueryRow(ctx,
		`SELECT `+columns+` FROM purchases WHERE id = $1`, id,
	).Scan(&p.ID, &p.UserID, &p.ProductID, &p.MerchantChargeID, &status, &p.CreatedAt)
	if err != nil {
		return nil, mapError(err, id.String())
	}
	p.Status = domain.PurchaseStatus(status)
	return &p, nil
}

// GetByChargeIdentifier returns the purchase backed by the processor-side
// charge identifier (e.g. the id carried on a refund webhook).
// Returns domain.ErrNotFound if no purchase references that charge.
func (r *Repo) GetByChargeIdentifier(ctx context.Context, identifier string) (*domain.Purchase, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var p domain.Purchase
	var status string
	err := q.QueryRow(ctx,
		`SELECT p.id, p.user_id, p.product_id, p.merchant_charge_id, p.status, p.created_at
		 FROM purchases p
		 JOIN merchant_charges mc ON mc.id = p.merchant_charge_id
		 WHERE mc.identifier = $1`,
		identifier,
	).Scan(&p.ID, &p.UserID, &p.ProductID, &p.MerchantChargeID, &status, &p.CreatedAt)
	if err != nil {
		return nil, mapError(err, identifier)
	}
	p.Status = domain.PurchaseStatus(status)
	return &p, nil
}

// Create inserts a new purchase.
func (r *Repo) Create(ctx context.Context, p *domain.Purchase) (*domain.Purchase, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	if p.Status == "" {
		p.Status = domain.PurchaseStatusValid
	}

	var created domain.Purchase
	var status string
	err := q.QueryRow(ctx,
		`INSERT INTO purchases (id, user_id, product_id, merchant_charge_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+columns,
		p.ID, p.UserID, p.ProductID, p.MerchantChargeID, string(p.Status),
	).Scan(&created.ID, &created.UserID, &created.ProductID, &created.MerchantChargeID, &status, &created.CreatedAt)
	if err != nil {
		return nil, mapError(err, p.ID.String())
	}
	created.Status = domain.PurchaseStatus(status)
	return &created, nil
}

// MarkRefunded transitions the purchase to refunded and reports whether
// this call changed anything. The guard in the WHERE clause makes the
// transition idempotent: processing the same refund twice applies it once.
func (r *Repo) MarkRefunded(ctx context.Context, id uuid.UUID) (changed bool, err error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx,
		`UPDATE purchases SET status = $2 WHERE id = $1 AND status <> $2`,
		id, string(domain.PurchaseStatusRefunded))
	if err != nil {
		return false, mapError(err, id.String())
	}
	return tag.RowsAffected() > 0, nil
}

func mapError(err error, id string) error {
	return postgres.MapError(err, "purchase", id)
}
