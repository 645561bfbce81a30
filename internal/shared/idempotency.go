package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict reports that the key was already claimed, the
// posting it guards has run before.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore claims posting keys in Postgres so a retried submit or
// cancel collapses into the first delivery. Keys are unique per module.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims the key. The unique constraint on the table is the
// arbiter; a duplicate insert surfaces as ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("shared: idempotency store not initialised")
	}
	if key == "" || module == "" {
		return errors.New("shared: idempotency key and module required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`,
		key, module, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return fmt.Errorf("shared: claim idempotency key: %w", err)
	}
	return nil
}

// Delete releases a key after the guarded posting failed so the caller can
// retry with the same key.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("shared: idempotency key required")
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key); err != nil {
		return fmt.Errorf("shared: release idempotency key: %w", err)
	}
	return nil
}

// Cleanup drops keys older than the retention window. Run from the worker
// on a schedule, not from request paths.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("shared: idempotency cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
