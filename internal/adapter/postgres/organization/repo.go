// Package organization persists organizations. The interesting operation
// is EnsurePersonal: a racy "create if absent" backed by a partial unique
// index on (owner_id) WHERE personal, so concurrent calls converge on one
// row per user.
package organization

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Repo provides organization persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new organization repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const columns = `id, name, owner_id, personal, created_at`

// GetByID returns an organization by primary key.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var o domain.Organization
	err := q.QueryRow(ctx,
		`SELECT `+columns+` FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.OwnerID, &o.Personal, &o.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "organization", id.String())
	}
	return &o, nil
}

// GetPersonal returns the personal organization of the given owner.
func (r *Repo) GetPersonal(ctx context.Context, ownerID uuid.UUID) (*domain.Organization, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var o domain.Organization
	err := q.QueryRow(ctx,
		`SELECT `+columns+` FROM organizations WHERE owner_id = $1 AND personal`, ownerID,
	).Scan(&o.ID, &o.Name, &o.OwnerID, &o.Personal, &o.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "organization", ownerID.String())
	}
	return &o, nil
}

// EnsurePersonal creates the owner's personal organization if it does not
// exist yet and returns it either way, reporting whether this call created
// it. Safe to call concurrently and to replay: the partial unique index
// turns the duplicate insert into a fetch of the existing row.
func (r *Repo) EnsurePersonal(ctx context.Context, ownerID uuid.UUID, name string) (org *domain.Organization, created bool, err error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var o domain.Organization
	err = q.QueryRow(ctx,
		`INSERT INTO organizations (id, name, owner_id, personal)
		 VALUES ($1, $2, $3, true)
		 ON CONFLICT (owner_id) WHERE personal DO NOTHING
		 RETURNING `+columns,
		uuid.New(), name, ownerID,
	).Scan(&o.ID, &o.Name, &o.OwnerID, &o.Personal, &o.CreatedAt)
	if err == nil {
		return &o, true, nil
	}

	// No row returned means the conflict arm fired: somebody else already
	// created it. Anything else is a real error.
	mapped := postgres.MapError(err, "organization", ownerID.String())
	if !errors.Is(mapped, domain.ErrNotFound) {
		return nil, false, mapped
	}

	existing, err := r.GetPersonal(ctx, ownerID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Create inserts a non-personal organization.
func (r *Repo) Create(ctx context.Context, o *domain.Organization) (*domain.Organization, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	var created domain.Organization
	err := q.QueryRow(ctx,
		`INSERT INTO organizations (id, name, owner_id, personal)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+columns,
		o.ID, o.Name, o.OwnerID, o.Personal,
	).Scan(&created.ID, &created.Name, &created.OwnerID, &created.Personal, &created.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "organization", o.ID.String())
	}
	return &created, nil
}
