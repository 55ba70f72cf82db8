package calls

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("calls: not found")

// Repository persists journal records. Save is an upsert keyed by CallID.
type Repository interface {
	Save(ctx context.Context, c Call) error
	Get(ctx context.Context, id uuid.UUID) (Call, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Call, error)
}
