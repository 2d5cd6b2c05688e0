// Package marker stores durable idempotency markers. A marker records
// that a handler has already applied a side effect for a given key;
// redelivered events find the marker and skip the effect.
package marker

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/coursekit/coursekit-backend/internal/adapter/postgres"
)

// Repo provides idempotency marker persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new marker repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Claim records that handler has applied the side effect identified by key.
// Returns true when this call claimed the key, false when it was already
// claimed. The claim survives the transaction it runs in, so a handler that
// claims inside a transaction and then fails rolls the claim back with the
// rest of its work.
func (r *Repo) Claim(ctx context.Context, handler, key string) (bool, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx,
		`INSERT INTO workflow_markers (handler, key) VALUES ($1, $2)
		 ON CONFLICT (handler, key) DO NOTHING`,
		handler, key)
	if err != nil {
		return false, postgres.MapError(err, "workflow_marker", handler+"/"+key)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether the key is already claimed by handler.
func (r *Repo) Exists(ctx context.Context, handler, key string) (bool, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var found bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM workflow_markers WHERE handler = $1 AND key = $2)`,
		handler, key,
	).Scan(&found)
	if err != nil {
		return false, postgres.MapError(err, "workflow_marker", handler+"/"+key)
	}
	return found, nil
}

// Release removes a claim, allowing the side effect to run again. Used when
// the effect itself failed after the claim was taken outside a transaction.
func (r *Repo) Release(ctx context.Context, handler, key string) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	if _, err := q.Exec(ctx,
		`DELETE FROM workflow_markers WHERE handler = $1 AND key = $2`,
		handler, key); err != nil {
		return postgres.MapError(err, "workflow_marker", handler+"/"+key)
	}
	return nil
}
