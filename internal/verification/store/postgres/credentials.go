package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	pgplatform "attest/internal/platform/postgres"
	"attest/internal/verification/models"
	"attest/pkg/platform/sentinel"
)

func (s *Store) SaveCredential(ctx context.Context, rec models.CredentialRecord) error {
	vc, err := json.Marshal(rec.VC)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (issuer_id, credential_index, subject_id, signature_value, initiator_id, vc, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.VC.Issuer, rec.CredentialIndex, rec.VC.ID, rec.VC.SignatureValue, rec.InitiatorID, vc, rec.Revoked)
	if err != nil {
		if pgplatform.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *Store) FindCredential(ctx context.Context, subjectID, signatureValue, issuerID string) (*models.CredentialRecord, error) {
	var (
		rec models.CredentialRecord
		vc  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT vc, initiator_id, credential_index, revoked
		FROM credentials
		WHERE subject_id = $1 AND signature_value = $2 AND issuer_id = $3
	`, subjectID, signatureValue, issuerID).Scan(&vc, &rec.InitiatorID, &rec.CredentialIndex, &rec.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	if err := json.Unmarshal(vc, &rec.VC); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &rec, nil
}

func (s *Store) RevokeCredential(ctx context.Context, subjectID, signatureValue, issuerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET revoked = TRUE
		WHERE subject_id = $1 AND signature_value = $2 AND issuer_id = $3
	`, subjectID, signatureValue, issuerID)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	return requireRow(res, "revoke credential")
}

func (s *Store) NextCredentialIndex(ctx context.Context, issuerID string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		SELECT next_index FROM credential_counters WHERE issuer_id = $1
	`, issuerID).Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read credential counter: %w", err)
	}
	return next, nil
}

// ClaimCredentialIndex increments the issuer's counter in a single statement
// and returns the value it held before.
func (s *Store) ClaimCredentialIndex(ctx context.Context, issuerID string) (int64, error) {
	var claimed int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO credential_counters (issuer_id, next_index) VALUES ($1, 1)
		ON CONFLICT (issuer_id) DO UPDATE SET next_index = credential_counters.next_index + 1
		RETURNING next_index - 1
	`, issuerID).Scan(&claimed)
	if err != nil {
		return 0, fmt.Errorf("claim credential index: %w", err)
	}
	return claimed, nil
}
