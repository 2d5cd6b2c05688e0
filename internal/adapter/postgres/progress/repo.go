// Package progress implements the resource progress store using
// PostgreSQL. One row per (resource, user) pair; all writes go through the
// monotonic Advance transition, so out-of-order and redelivered progress
// events can never regress a row.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Repo provides resource progress persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new progress repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Get returns the progress row for (resourceID, userID).
// Returns domain.ErrNotFound if no progress has been recorded yet.
func (r *Repo) Get(ctx context.Context, resourceID, userID uuid.UUID) (*domain.ResourceProgress, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var p domain.ResourceProgress
	var state string
	err := q.QueryRow(ctx,
		`SELECT resource_id, user_id, state, completed_at, created_at, updated_at
		 FROM resource_progress
		 WHERE resource_id = $1 AND user_id = $2`,
		resourceID, userID,
	).Scan(&p.ResourceID, &p.UserID, &state, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err, resourceID)
	}
	p.State = domain.ProgressState(state)
	return &p, nil
}

// Advance moves the (resourceID, userID) row toward target and returns the
// resulting row. Missing rows are created at not-started first. The whole
// operation is one atomic read-modify-write under a row lock; a target at
// or below the current state is a no-op, which makes redelivery and
// out-of-order arrival safe.
func (r *Repo) Advance(ctx context.Context, resourceID, userID uuid.UUID, target domain.ProgressState) (*domain.ResourceProgress, error) {
	if !target.IsValid() {
		return nil, domain.NewValidationError("state", "invalid progress state")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	// Ensure the row exists, then lock it.
	if _, err := tx.Exec(ctx,
		`INSERT INTO resource_progress (resource_id, user_id, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (resource_id, user_id) DO NOTHING`,
		resourceID, userID, string(domain.ProgressNotStarted), now,
	); err != nil {
		return nil, mapError(err, resourceID)
	}

	var p domain.ResourceProgress
	var state string
	err = tx.QueryRow(ctx,
		`SELECT resource_id, user_id, state, completed_at, created_at, updated_at
		 FROM resource_progress
		 WHERE resource_id = $1 AND user_id = $2
		 FOR UPDATE`,
		resourceID, userID,
	).Scan(&p.ResourceID, &p.UserID, &state, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err, resourceID)
	}
	p.State = domain.ProgressState(state)

	if p.Advance(target, now) {
		if _, err := tx.Exec(ctx,
			`UPDATE resource_progress
			 SET state = $3, completed_at = $4, updated_at = $5
			 WHERE resource_id = $1 AND user_id = $2`,
			resourceID, userID, string(p.State), p.CompletedAt, p.UpdatedAt,
		); err != nil {
			return nil, mapError(err, resourceID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &p, nil
}

// CountByState returns per-state progress counts for a resource.
func (r *Repo) CountByState(ctx context.Context, resourceID uuid.UUID) (map[domain.ProgressState]int, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx,
		`SELECT state, COUNT(*) FROM resource_progress WHERE resource_id = $1 GROUP BY state`,
		resourceID)
	if err != nil {
		return nil, fmt.Errorf("count resource_progress: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ProgressState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan resource_progress count: %w", err)
		}
		counts[domain.ProgressState(state)] = n
	}
	return counts, rows.Err()
}

func mapError(err error, resourceID uuid.UUID) error {
	return postgres.MapError(err, "resource_progress", resourceID.String())
}
