package resource

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	postgres "github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Filter defines parameters for listing content resources.
type Filter struct {
	// Types restricts results to the given resource types; empty means all.
	Types []domain.ResourceType

	// States restricts results to the given pipeline states; empty means all.
	States []domain.ProcessingState

	// CreatedByID filters resources authored by the given user.
	CreatedByID *uuid.UUID

	// Search performs ILIKE '%...%' on fields->>'title'.
	Search *string

	// SortBy determines the sort column: "created_at" or "updated_at".
	// Default: "created_at".
	SortBy string

	// SortOrder: "ASC" or "DESC". Default: "DESC".
	SortOrder string

	// Limit is the maximum number of resources to return. Default: 50, max: 200.
	Limit int

	// Offset is the number of resources to skip.
	Offset int
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// normalize applies defaults and clamps values.
func (f *Filter) normalize() {
	switch f.SortBy {
	case "created_at", "updated_at":
	default:
		f.SortBy = "created_at"
	}
	switch f.SortOrder {
	case "ASC", "DESC":
	default:
		f.SortOrder = "DESC"
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

func (f *Filter) apply(builder sq.SelectBuilder) sq.SelectBuilder {
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		builder = builder.Where(sq.Eq{"type": types})
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, s := range f.States {
			states[i] = string(s)
		}
		builder = builder.Where(sq.Eq{"state": states})
	}
	if f.CreatedByID != nil {
		builder = builder.Where(sq.Eq{"created_by_id": *f.CreatedByID})
	}
	if f.Search != nil && *f.Search != "" {
		builder = builder.Where(sq.ILike{"fields->>'title'": "%" + *f.Search + "%"})
	}
	return builder
}

// List returns resources matching the filter plus the total match count.
func (r *Repo) List(ctx context.Context, f Filter) ([]*domain.ContentResource, int, error) {
	f.normalize()
	q := postgres.QuerierFromCtx(ctx, r.pool)
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	countSQL, countArgs, err := f.apply(psql.Select("COUNT(*)").From("content_resources")).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count content_resources: %w", err)
	}

	listSQL, listArgs, err := f.apply(psql.Select(columns).From("content_resources")).
		OrderBy(f.SortBy + " " + f.SortOrder).
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := q.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list content_resources: %w", err)
	}
	defer rows.Close()

	var resources []*domain.ContentResource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan content_resource: %w", err)
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate content_resources: %w", err)
	}

	return resources, total, nil
}
