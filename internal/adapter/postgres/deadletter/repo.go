// Package deadletter persists events that exhausted their retries or
// failed permanently. One row per (event, handler); redelivering a dead
// event to the same handler does not produce a second row.
package deadletter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Entry is one dead-lettered (event, handler) pair.
type Entry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventName     string
	CorrelationID string
	Handler       string
	Payload       []byte
	Attempts      int
	Error         string
	CreatedAt     time.Time
	RequeuedAt    *time.Time
}

// Repo provides dead letter persistence backed by PostgreSQL.
// It implements the engine's dead letter sink.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new dead letter repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Add records a dead-lettered event. Replays of the same (event, handler)
// pair are absorbed by the unique constraint.
func (r *Repo) Add(ctx context.Context, evt domain.Event, handler string, attempts int, cause error) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := q.Exec(ctx,
		`INSERT INTO dead_letters
		     (id, event_id, event_name, correlation_id, handler, payload, attempts, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id, handler) DO NOTHING`,
		uuid.New(), evt.ID, evt.Name, evt.CorrelationID, handler,
		[]byte(evt.Raw), attempts, msg)
	if err != nil {
		return postgres.MapError(err, "dead_letter", evt.ID.String())
	}
	return nil
}

const columns = `id, event_id, event_name, correlation_id, handler, payload,
	attempts, error, created_at, requeued_at`

// GetByID returns one dead letter entry.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var e Entry
	err := q.QueryRow(ctx,
		`SELECT `+columns+` FROM dead_letters WHERE id = $1`, id,
	).Scan(&e.ID, &e.EventID, &e.EventName, &e.CorrelationID, &e.Handler,
		&e.Payload, &e.Attempts, &e.Error, &e.CreatedAt, &e.RequeuedAt)
	if err != nil {
		return nil, postgres.MapError(err, "dead_letter", id.String())
	}
	return &e, nil
}

// List returns dead letters not yet requeued, newest first. An empty
// eventName matches all events.
func (r *Repo) List(ctx context.Context, eventName string, limit int) ([]*Entry, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	if limit <= 0 {
		limit = 100
	}

	rows, err := q.Query(ctx,
		`SELECT `+columns+`
		 FROM dead_letters
		 WHERE requeued_at IS NULL AND ($1 = '' OR event_name = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		eventName, limit)
	if err != nil {
		return nil, postgres.MapError(err, "dead_letter", eventName)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventName, &e.CorrelationID,
			&e.Handler, &e.Payload, &e.Attempts, &e.Error, &e.CreatedAt,
			&e.RequeuedAt); err != nil {
			return nil, postgres.MapError(err, "dead_letter", eventName)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "dead_letter", eventName)
	}
	return entries, nil
}

// MarkRequeued stamps an entry as requeued. Returns false when the entry
// was already requeued, so two operators replaying the same entry race to
// a single requeue.
func (r *Repo) MarkRequeued(ctx context.Context, id uuid.UUID) (bool, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx,
		`UPDATE dead_letters SET requeued_at = now()
		 WHERE id = $1 AND requeued_at IS NULL`,
		id)
	if err != nil {
		return false, postgres.MapError(err, "dead_letter", id.String())
	}
	return tag.RowsAffected() > 0, nil
}
