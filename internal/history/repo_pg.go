package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
	// Now overrides the commit clock, for tests.
	Now func() time.Time
}

func (r *PGRepo) clock() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// CountSince counts events for identity within [since, now].
func (r *PGRepo) CountSince(ctx context.Context, identity string, since time.Time) (int, error) {
	if identity == "" {
		return 0, ErrMissingIdentity
	}
	const query = `
SELECT COUNT(*) FROM history WHERE identity = $1 AND created_at >= $2`
	var count int
	if err := r.DB.QueryRowContext(ctx, query, identity, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Append inserts the event with a fresh ID and commit timestamp.
func (r *PGRepo) Append(ctx context.Context, event Event) (Event, error) {
	if event.Identity == "" {
		return Event{}, ErrMissingIdentity
	}
	event.ID = uuid.NewString()
	event.CreatedAt = r.clock()

	const query = `
INSERT INTO history (id, identity, company_type, input_doc, result, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.DB.ExecContext(ctx, query,
		event.ID,
		event.Identity,
		event.CompanyType,
		event.InputDoc,
		event.Result,
		event.CreatedAt,
	); err != nil {
		return Event{}, err
	}
	return event, nil
}

// ListByIdentity returns events for identity ordered newest-first.
func (r *PGRepo) ListByIdentity(ctx context.Context, identity string, limit, offset int) ([]Event, error) {
	if identity == "" {
		return nil, ErrMissingIdentity
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
SELECT id, identity, company_type, input_doc, result, created_at
FROM history
WHERE identity = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, identity, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Identity, &e.CompanyType, &e.InputDoc, &e.Result, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
