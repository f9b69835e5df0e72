package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresBackend stores lock records in the concurrency_locks table. An
// existing row is overwritten only once it has expired.
type PostgresBackend struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db, now: time.Now}
}

func (b *PostgresBackend) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := b.now().UTC()
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO concurrency_locks (name, owner, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			owner = EXCLUDED.owner,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE concurrency_locks.expires_at <= $3
	`, name, owner, now, now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("insert lock record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert lock record: %w", err)
	}
	return n == 1, nil
}

func (b *PostgresBackend) Release(ctx context.Context, name, owner string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM concurrency_locks WHERE name = $1 AND owner = $2`, name, owner)
	if err != nil {
		return fmt.Errorf("delete lock record: %w", err)
	}
	return nil
}
