// Package resource implements the content resource store using PostgreSQL.
// The store is the single owner of content resource rows: workflow steps
// mutate them only through Update, which runs the mutation inside a row
// lock so every change is one atomic read-modify-write.
package resource

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Repo provides content resource persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
	txm  *postgres.TxManager
}

// New creates a new content resource repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool, txm: postgres.NewTxManager(pool)}
}

const columns = `id, type, fields, state, created_by_id, created_at, updated_at`

func scanResource(row pgx.Row) (*domain.ContentResource, error) {
	var r domain.ContentResource
	var rtype, state string
	if err := row.Scan(&r.ID, &rtype, &r.Fields, &state, &r.CreatedByID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Type = domain.ResourceType(rtype)
	r.State = domain.ProcessingState(state)
	return &r, nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetByID returns a content resource by primary key.
// Returns domain.ErrNotFound if the resource does not exist.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ContentResource, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	res, err := scanResource(q.QueryRow(ctx,
		`SELECT `+columns+` FROM content_resources WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, id.String())
	}
	return res, nil
}

// FindByFieldValue returns the first resource of the given type whose
// fields bag holds value under key. Used for idempotency lookups (e.g.
// "is there already a screenshot resource for this event id").
// Returns domain.ErrNotFound when no such resource exists.
func (r *Repo) FindByFieldValue(ctx context.Context, rtype domain.ResourceType, key, value string) (*domain.ContentResource, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	res, err := scanResource(q.QueryRow(ctx,
		`SELECT `+columns+` FROM content_resources
		 WHERE type = $1 AND fields->>$2 = $3
		 ORDER BY created_at
		 LIMIT 1`,
		string(rtype), key, value))
	if err != nil {
		return nil, mapError(err, string(rtype)+"/"+key)
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Create inserts a new content resource and returns the persisted row.
func (r *Repo) Create(ctx context.Context, res *domain.ContentResource) (*domain.ContentResource, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	if res.Fields == nil {
		res.Fields = map[string]any{}
	}
	if res.State == "" {
		res.State = domain.StateCreated
	}
	now := time.Now().UTC()

	created, err := scanResource(q.QueryRow(ctx,
		`INSERT INTO content_resources (id, type, fields, state, created_by_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING `+columns,
		res.ID, string(res.Type), res.Fields, string(res.State), res.CreatedByID, now))
	if err != nil {
		return nil, mapError(err, res.ID.String())
	}
	return created, nil
}

// Update applies mutate to the current row under a row lock and persists
// the result. The callback sees the freshest committed state, so handlers
// never act on stale reads; returning an error from mutate rolls the
// change back untouched.
func (r *Repo) Update(ctx context.Context, id uuid.UUID, mutate func(*domain.ContentResource) error) (*domain.ContentResource, error) {
	var updated *domain.ContentResource
	err := r.txm.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, r.pool)

		res, err := scanResource(q.QueryRow(ctx,
			`SELECT `+columns+` FROM content_resources WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapError(err, id.String())
		}

		if err := mutate(res); err != nil {
			return err
		}
		res.UpdatedAt = time.Now().UTC()

		updated, err = scanResource(q.QueryRow(ctx,
			`UPDATE content_resources
			 SET fields = $2, state = $3, updated_at = $4
			 WHERE id = $1
			 RETURNING `+columns,
			id, res.Fields, string(res.State), res.UpdatedAt))
		if err != nil {
			return mapError(err, id.String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// TransitionState moves the resource's pipeline state through the declared
// state machine. Moving to the state the row is already in is a no-op
// success; an illegal move returns a ConflictError.
func (r *Repo) TransitionState(ctx context.Context, id uuid.UUID, target domain.ProcessingState) (*domain.ContentResource, error) {
	return r.Update(ctx, id, func(res *domain.ContentResource) error {
		next, err := res.State.Transition(target)
		if err != nil {
			return err
		}
		res.State = next
		return nil
	})
}

func mapError(err error, id string) error {
	return postgres.MapError(err, "content_resource", id)
}
