// Package ports defines the persistence and infrastructure interfaces consumed by
// the verification module. Implementations live under store/, lock/ and eventlog/.
package ports

import (
	"context"
	"log/slog"

	"attest/internal/identity"
	"attest/internal/verification/models"
	"attest/pkg/platform/middleware/metadata"
	request "attest/pkg/platform/middleware/request"
)

// UserStore persists users and their verification state.
type UserStore interface {
	// FindUser returns sentinel.ErrNotFound when the user does not exist.
	FindUser(ctx context.Context, identityID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	// AddCredential appends vc to the user's credential list.
	AddCredential(ctx context.Context, identityID string, vc models.VerifiableCredential) error
	// UpdateVerification overwrites the user's verification state.
	UpdateVerification(ctx context.Context, v models.Verification) error
}

// IdentityStore persists identity documents with their sealed keys.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, rec identity.Record) error
	// FindIdentity returns sentinel.ErrNotFound when the identity does not exist.
	FindIdentity(ctx context.Context, identityID string) (*identity.Record, error)
}

// CredentialStore persists issued credentials.
type CredentialStore interface {
	// SaveCredential returns sentinel.ErrConflict if (issuer, index) is taken.
	SaveCredential(ctx context.Context, rec models.CredentialRecord) error
	FindCredential(ctx context.Context, subjectID, signatureValue, issuerID string) (*models.CredentialRecord, error)
	// RevokeCredential flips the revoked flag. It never clears it.
	RevokeCredential(ctx context.Context, subjectID, signatureValue, issuerID string) error
}

// TrustedRootStore holds the append-only trusted root set.
type TrustedRootStore interface {
	AddTrustedRoot(ctx context.Context, identityID string) error
	ListTrustedRoots(ctx context.Context) ([]string, error)
}

// CredentialIndexStore owns the per-issuer credential counters.
type CredentialIndexStore interface {
	// NextCredentialIndex returns the index the next claim would receive.
	NextCredentialIndex(ctx context.Context, issuerID string) (int64, error)
	// ClaimCredentialIndex atomically increments the counter and returns the claimed index.
	ClaimCredentialIndex(ctx context.Context, issuerID string) (int64, error)
}

// KeyCollectionStore persists key collection buckets.
type KeyCollectionStore interface {
	// FindKeyCollection returns sentinel.ErrNotFound for a bucket never created.
	FindKeyCollection(ctx context.Context, index int64) (*models.KeyCollection, error)
	// CreateKeyCollection writes the whole bucket or nothing. Returns
	// sentinel.ErrConflict if the bucket already exists.
	CreateKeyCollection(ctx context.Context, kc models.KeyCollection) error
	RevokeKey(ctx context.Context, index int64, position int) error
}

// StateStore is the full verification state persistence.
type StateStore interface {
	UserStore
	IdentityStore
	CredentialStore
	TrustedRootStore
	CredentialIndexStore
	KeyCollectionStore
}

// Releaser releases a held lock.
type Releaser interface {
	Release(ctx context.Context) error
}

// Locker hands out time-boxed advisory locks. An expired lock may be taken
// over by any caller.
type Locker interface {
	Acquire(ctx context.Context, name string) (Releaser, error)
}

// EventLog is the append-only credential event log.
type EventLog interface {
	Append(ctx context.Context, event models.CredentialEvent) error
}

// LogAudit logs a security-relevant event with the request id attached.
func LogAudit(ctx context.Context, logger *slog.Logger, event string, attrs ...any) {
	if logger == nil {
		return
	}
	if requestID := request.GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if client, ok := metadata.GetClient(ctx); ok {
		attrs = append(attrs, "client_ip", client.IP, "client_browser", client.Browser, "client_os", client.OS)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	logger.InfoContext(ctx, event, args...)
}
