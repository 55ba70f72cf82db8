package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"voice-bridge/pkg/utils"
)

// NOTE: PostgresRepo assumes the following table exists:
//
//	CREATE TABLE calls (
//	  call_id      UUID PRIMARY KEY,
//	  direction    TEXT NOT NULL,
//	  remote       TEXT NOT NULL,
//	  status       TEXT NOT NULL,
//	  end_reason   TEXT NOT NULL DEFAULT '',
//	  created_at   TIMESTAMPTZ NOT NULL,
//	  connected_at TIMESTAMPTZ,
//	  ended_at     TIMESTAMPTZ,
//	  updated_at   TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Save(ctx context.Context, c Call) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row so a late event cannot overwrite a terminal status.
		const lockQ = `SELECT status FROM calls WHERE call_id = $1 FOR UPDATE`
		var current CallStatus
		err := tx.QueryRowContext(ctx, lockQ, c.CallID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return insertCall(ctx, tx, c)
		case err != nil:
			return err
		case current.Terminal():
			return nil
		}
		return updateCall(ctx, tx, c)
	})
}

func insertCall(ctx context.Context, tx *sql.Tx, c Call) error {
	const q = `
INSERT INTO calls (
  call_id, direction, remote, status, end_reason, created_at, connected_at, ended_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := tx.ExecContext(ctx, q,
		c.CallID,
		c.Direction,
		c.Remote,
		c.Status,
		c.EndReason,
		c.CreatedAt,
		nullTime(c.ConnectedAt),
		nullTime(c.EndedAt),
		c.UpdatedAt,
	)
	return err
}

func updateCall(ctx context.Context, tx *sql.Tx, c Call) error {
	const q = `
UPDATE calls
SET direction = $2, remote = $3, status = $4, end_reason = $5,
    connected_at = $6, ended_at = $7, updated_at = $8
WHERE call_id = $1
`
	_, err := tx.ExecContext(ctx, q,
		c.CallID,
		c.Direction,
		c.Remote,
		c.Status,
		c.EndReason,
		nullTime(c.ConnectedAt),
		nullTime(c.EndedAt),
		c.UpdatedAt,
	)
	return err
}

const selectCalls = `
SELECT call_id, direction, remote, status, end_reason, created_at, connected_at, ended_at, updated_at
FROM calls
`

func (r *PostgresRepo) Get(ctx context.Context, id uuid.UUID) (Call, error) {
	c, err := scanCall(r.db.QueryRowContext(ctx, selectCalls+"WHERE call_id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectCalls+"ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	return scanCalls(rows)
}

// Between returns records created in [from, to), oldest first.
func (r *PostgresRepo) Between(ctx context.Context, from, to time.Time) ([]Call, error) {
	rows, err := r.db.QueryContext(ctx, selectCalls+"WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at", from, to)
	if err != nil {
		return nil, err
	}
	return scanCalls(rows)
}

func scanCalls(rows *sql.Rows) ([]Call, error) {
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c         Call
		connected sql.NullTime
		ended     sql.NullTime
	)
	if err := row.Scan(
		&c.CallID,
		&c.Direction,
		&c.Remote,
		&c.Status,
		&c.EndReason,
		&c.CreatedAt,
		&connected,
		&ended,
		&c.UpdatedAt,
	); err != nil {
		return Call{}, err
	}
	if connected.Valid {
		c.ConnectedAt = &connected.Time
	}
	if ended.Valid {
		c.EndedAt = &ended.Time
	}
	return c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
