package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	pgplatform "attest/internal/platform/postgres"
	"attest/internal/verification/models"
	"attest/pkg/platform/sentinel"
)

func (s *Store) FindKeyCollection(ctx context.Context, index int64) (*models.KeyCollection, error) {
	kc := models.KeyCollection{Index: index}
	err := s.db.QueryRowContext(ctx, `
		SELECT size, created_at FROM key_collections WHERE collection_index = $1
	`, index).Scan(&kc.Size, &kc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find key collection: %w", err)
	}
	kc.CreatedAt = kc.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, public_key, secret_key, revoked
		FROM key_collection_keys
		WHERE collection_index = $1
		ORDER BY position
	`, index)
	if err != nil {
		return nil, fmt.Errorf("list collection keys: %w", err)
	}
	defer rows.Close()

	kc.Keys = make([]models.Key, 0, kc.Size)
	for rows.Next() {
		var k models.Key
		if err := rows.Scan(&k.Position, &k.PublicKey, &k.SecretKey, &k.Revoked); err != nil {
			return nil, fmt.Errorf("scan collection key: %w", err)
		}
		kc.Keys = append(kc.Keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection keys: %w", err)
	}
	return &kc, nil
}

// CreateKeyCollection writes the bucket header and all keys in one
// transaction.
func (s *Store) CreateKeyCollection(ctx context.Context, kc models.KeyCollection) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin key collection tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO key_collections (collection_index, size, created_at) VALUES ($1, $2, $3)
	`, kc.Index, kc.Size, kc.CreatedAt)
	if err != nil {
		if pgplatform.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert key collection: %w", err)
	}

	positions := make([]int64, len(kc.Keys))
	publics := make([]string, len(kc.Keys))
	secrets := make([]string, len(kc.Keys))
	for i, k := range kc.Keys {
		positions[i] = int64(k.Position)
		publics[i] = k.PublicKey
		secrets[i] = k.SecretKey
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO key_collection_keys (collection_index, position, public_key, secret_key)
		SELECT $1, p, pub, sec
		FROM unnest($2::bigint[], $3::text[], $4::text[]) AS t(p, pub, sec)
	`, kc.Index, pq.Array(positions), pq.Array(publics), pq.Array(secrets))
	if err != nil {
		return fmt.Errorf("insert collection keys: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit key collection: %w", err)
	}
	return nil
}

func (s *Store) RevokeKey(ctx context.Context, index int64, position int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE key_collection_keys SET revoked = TRUE
		WHERE collection_index = $1 AND position = $2
	`, index, position)
	if err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	return requireRow(res, "revoke key")
}
