package audit

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// PostgresRepo stores events in call_events.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, call_id, type, direction, remote, reason, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.CallID,
		e.Type,
		e.Direction,
		e.Remote,
		e.Reason,
		e.Message,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID uuid.UUID) ([]Event, error) {
	const q = `
SELECT id, call_id, type, direction, remote, reason, message, created_at
FROM call_events
WHERE call_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.CallID,
			&e.Type,
			&e.Direction,
			&e.Remote,
			&e.Reason,
			&e.Message,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
