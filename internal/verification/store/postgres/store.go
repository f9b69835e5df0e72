// Package postgres persists verification state in PostgreSQL.
// This store is pure I/O; callers own every domain rule.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"attest/internal/identity"
	pgplatform "attest/internal/platform/postgres"
	"attest/internal/verification/models"
	"attest/internal/verification/ports"
	"attest/pkg/platform/sentinel"
)

var _ ports.StateStore = (*Store)(nil)

// Store implements ports.StateStore.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindUser(ctx context.Context, identityID string) (*models.User, error) {
	var (
		u         models.User
		role      string
		claim     []byte
		vcs       []byte
		verified  sql.NullBool
		checked   sql.NullTime
		verifDate sql.NullTime
		issuer    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT u.identity_id, u.role, u.type, u.organization, u.claim, u.verifiable_credentials,
			v.verified, v.last_time_checked, v.verification_date, v.verification_issuer_id
		FROM users u
		LEFT JOIN user_verifications v ON v.identity_id = u.identity_id
		WHERE u.identity_id = $1
	`, identityID).Scan(&u.IdentityID, &role, &u.Type, &u.Organization, &claim, &vcs,
		&verified, &checked, &verifDate, &issuer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Role = models.Role(role)
	if len(claim) > 0 {
		u.Claim = json.RawMessage(claim)
	}
	if err := json.Unmarshal(vcs, &u.VerifiableCredentials); err != nil {
		return nil, fmt.Errorf("decode user credentials: %w", err)
	}
	if verified.Valid {
		u.Verification = &models.Verification{
			IdentityID:           u.IdentityID,
			Verified:             verified.Bool,
			LastTimeChecked:      checked.Time.UTC(),
			VerificationDate:     verifDate.Time.UTC(),
			VerificationIssuerID: issuer.String,
		}
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	vcs := user.VerifiableCredentials
	if vcs == nil {
		vcs = []models.VerifiableCredential{}
	}
	vcsJSON, err := json.Marshal(vcs)
	if err != nil {
		return fmt.Errorf("encode user credentials: %w", err)
	}
	var claim any
	if len(user.Claim) > 0 {
		claim = []byte(user.Claim)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (identity_id, role, type, organization, claim, verifiable_credentials)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity_id) DO UPDATE SET
			role = EXCLUDED.role,
			type = EXCLUDED.type,
			organization = EXCLUDED.organization,
			claim = EXCLUDED.claim,
			verifiable_credentials = EXCLUDED.verifiable_credentials
	`, user.IdentityID, string(user.Role), user.Type, user.Organization, claim, vcsJSON)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) AddCredential(ctx context.Context, identityID string, vc models.VerifiableCredential) error {
	vcJSON, err := json.Marshal([]models.VerifiableCredential{vc})
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET verifiable_credentials = verifiable_credentials || $2::jsonb
		WHERE identity_id = $1
	`, identityID, vcJSON)
	if err != nil {
		return fmt.Errorf("add user credential: %w", err)
	}
	return requireRow(res, "add user credential")
}

func (s *Store) UpdateVerification(ctx context.Context, v models.Verification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_verifications (identity_id, verified, last_time_checked, verification_date, verification_issuer_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id) DO UPDATE SET
			verified = EXCLUDED.verified,
			last_time_checked = EXCLUDED.last_time_checked,
			verification_date = EXCLUDED.verification_date,
			verification_issuer_id = EXCLUDED.verification_issuer_id
	`, v.IdentityID, v.Verified, v.LastTimeChecked, v.VerificationDate, v.VerificationIssuerID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("update verification: %w", err)
	}
	return nil
}

func (s *Store) SaveIdentity(ctx context.Context, rec identity.Record) error {
	doc, err := json.Marshal(rec.Document)
	if err != nil {
		return fmt.Errorf("encode identity document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identities (identity_id, document, public_key, secret_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity_id) DO UPDATE SET
			document = EXCLUDED.document,
			public_key = EXCLUDED.public_key,
			secret_key = EXCLUDED.secret_key
	`, rec.Document.ID, doc, rec.Key.Public, rec.Key.Secret)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *Store) FindIdentity(ctx context.Context, identityID string) (*identity.Record, error) {
	var (
		rec identity.Record
		doc []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT document, public_key, secret_key FROM identities WHERE identity_id = $1
	`, identityID).Scan(&doc, &rec.Key.Public, &rec.Key.Secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if err := json.Unmarshal(doc, &rec.Document); err != nil {
		return nil, fmt.Errorf("decode identity document: %w", err)
	}
	return &rec, nil
}

func (s *Store) AddTrustedRoot(ctx context.Context, identityID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trusted_roots (identity_id) VALUES ($1) ON CONFLICT (identity_id) DO NOTHING
	`, identityID)
	if err != nil {
		return fmt.Errorf("add trusted root: %w", err)
	}
	return nil
}

func (s *Store) ListTrustedRoots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity_id FROM trusted_roots ORDER BY added_at, identity_id`)
	if err != nil {
		return nil, fmt.Errorf("list trusted roots: %w", err)
	}
	defer rows.Close()

	roots := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trusted root: %w", err)
		}
		roots = append(roots, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trusted roots: %w", err)
	}
	return roots, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	return pgplatform.HasErrorCode(err, pgplatform.ForeignKeyViolation)
}
