// Package service issues, checks and revokes verified-identity credentials.
//
// Service is the credential core. Workflow layers authorization and request
// validation on top of it for the route handlers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attest/internal/identity"
	"attest/internal/verification/keycollection"
	"attest/internal/verification/lock"
	"attest/internal/verification/metrics"
	"attest/internal/verification/models"
	"attest/internal/verification/ports"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
)

// Settings is the immutable configuration of the verification module.
type Settings struct {
	ServerSecret      string
	ServerIdentityID  string
	KeyCollectionSize int
}

// Deps bundles the collaborators shared by the service, the authorization
// engine and the bootstrapper.
type Deps struct {
	Store      ports.StateStore
	Keys       *keycollection.Allocator
	Identities identity.Capability
	Locker     ports.Locker
	Events     ports.EventLog
}

// Service is the credential core.
type Service struct {
	settings   Settings
	store      ports.StateStore
	keys       *keycollection.Allocator
	identities identity.Capability
	locker     ports.Locker
	events     ports.EventLog
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the issuance clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(settings Settings, deps Deps, opts ...Option) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Keys == nil {
		return nil, fmt.Errorf("key collection allocator is required")
	}
	if deps.Identities == nil {
		return nil, fmt.Errorf("identity capability is required")
	}
	if deps.Locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if settings.KeyCollectionSize != deps.Keys.Size() {
		return nil, fmt.Errorf("key collection size %d does not match allocator size %d",
			settings.KeyCollectionSize, deps.Keys.Size())
	}
	s := &Service{
		settings:   settings,
		store:      deps.Store,
		keys:       deps.Keys,
		identities: deps.Identities,
		locker:     deps.Locker,
		events:     deps.Events,
		tracer:     otel.Tracer("attest/verification"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Settings returns the service configuration.
func (s *Service) Settings() Settings {
	return s.settings
}

// WithServerIdentity returns a copy of the service bound to the root identity.
func (s *Service) WithServerIdentity(identityID string) *Service {
	cp := *s
	cp.settings.ServerIdentityID = identityID
	return &cp
}

// VerifyIdentity issues a verified-identity credential for subject signed
// under issuerID's key collections, and records the subject as verified.
func (s *Service) VerifyIdentity(ctx context.Context, subject *models.User, issuerID, initiatorID string) (*models.VerifiableCredential, error) {
	ctx, span := s.tracer.Start(ctx, "verification.VerifyIdentity", trace.WithAttributes(
		attribute.String("issuer_id", issuerID),
	))
	defer span.End()
	start := time.Now()

	if subject == nil || subject.IdentityID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject is required")
	}
	if _, err := s.store.FindIdentity(ctx, issuerID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "issuer identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer identity")
	}

	vc, err := s.issue(ctx, subject, issuerID, initiatorID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := vc.IssuanceDate
	if err := s.store.AddCredential(ctx, subject.IdentityID, *vc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach credential to subject")
	}
	if err := s.store.UpdateVerification(ctx, models.Verification{
		IdentityID:           subject.IdentityID,
		Verified:             true,
		LastTimeChecked:      now,
		VerificationDate:     now,
		VerificationIssuerID: issuerID,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification")
	}

	s.publish(ctx, models.EventCredentialIssued, *vc, initiatorID)
	s.metrics.ObserveIssued(time.Since(start))
	ports.LogAudit(ctx, s.logger, "credential_issued",
		"subject_id", subject.IdentityID,
		"issuer_id", issuerID,
		"initiator_id", initiatorID,
		"credential_index", vc.CredentialIndex,
	)
	return vc, nil
}

// issue claims the next credential index under the advisory lock, signs the
// credential with the key at that index and persists the record. The lock is
// held until the record is saved so indices are stored in claim order.
func (s *Service) issue(ctx context.Context, subject *models.User, issuerID, initiatorID string) (*models.VerifiableCredential, error) {
	held, err := s.locker.Acquire(ctx, lock.CredentialIndex)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "credential index is busy, retry later")
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to release credential index lock", "error", err)
		}
	}()

	index, err := s.store.ClaimCredentialIndex(ctx, issuerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim credential index")
	}
	key, err := s.keyAt(ctx, index)
	if err != nil {
		return nil, err
	}

	vc := &models.VerifiableCredential{
		ID:   subject.IdentityID,
		Type: models.CredentialTypeVerifiedIdentity,
		CredentialSubject: &models.CredentialSubject{
			ID:           subject.IdentityID,
			Type:         subject.Type,
			Organization: subject.Organization,
			Claim:        subject.Claim,
		},
		Issuer:          issuerID,
		IssuanceDate:    s.now().UTC().Truncate(time.Second),
		CredentialIndex: index,
	}
	if err := s.sign(vc, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign credential")
	}

	err = s.store.SaveCredential(ctx, models.CredentialRecord{
		VC:              *vc,
		InitiatorID:     initiatorID,
		CredentialIndex: index,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "credential index already issued")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save credential")
	}
	return vc, nil
}

func (s *Service) keyAt(ctx context.Context, index int64) (models.Key, error) {
	kc, err := s.keys.Get(ctx, s.keys.Index(index))
	if err != nil {
		return models.Key{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate key collection")
	}
	pos := s.keys.Position(index)
	if pos >= len(kc.Keys) {
		return models.Key{}, dErrors.New(dErrors.CodeInvariantViolation, "key collection is incomplete")
	}
	return kc.Keys[pos], nil
}

// CheckVerifiableCredential reports whether vc is a currently valid
// credential: issued by a trusted root, stored and not revoked, backed by a
// non-revoked key and carrying a valid signature. It never errors.
func (s *Service) CheckVerifiableCredential(ctx context.Context, vc models.VerifiableCredential) bool {
	ctx, span := s.tracer.Start(ctx, "verification.CheckVerifiableCredential")
	defer span.End()

	reason := s.checkCredential(ctx, vc)
	span.SetAttributes(attribute.Bool("verified", reason == ""))
	if reason != "" && s.logger != nil {
		s.logger.DebugContext(ctx, "credential check failed", "reason", reason, "subject_id", vc.ID)
	}
	return reason == ""
}

// checkCredential returns an empty string for a valid credential and a short
// failure description otherwise.
func (s *Service) checkCredential(ctx context.Context, vc models.VerifiableCredential) string {
	if vc.ID == "" || vc.Issuer == "" || vc.SignatureValue == "" || vc.CredentialSubject == nil {
		return "malformed credential"
	}
	if vc.CredentialSubject.ID != vc.ID {
		return "subject mismatch"
	}
	roots, err := s.store.ListTrustedRoots(ctx)
	if err != nil {
		return "trusted roots unavailable"
	}
	if !slices.Contains(roots, vc.Issuer) {
		return "issuer is not a trusted root"
	}
	if _, err := s.store.FindIdentity(ctx, vc.Issuer); err != nil {
		return "issuer identity unavailable"
	}
	rec, err := s.store.FindCredential(ctx, vc.ID, vc.SignatureValue, vc.Issuer)
	if err != nil {
		return "credential not found"
	}
	if rec.Revoked {
		return "credential revoked"
	}
	if rec.CredentialIndex != vc.CredentialIndex {
		return "credential index mismatch"
	}
	kc, err := s.store.FindKeyCollection(ctx, s.keys.Index(rec.CredentialIndex))
	if err != nil {
		return "key collection unavailable"
	}
	pos := s.keys.Position(rec.CredentialIndex)
	if pos >= len(kc.Keys) {
		return "key missing"
	}
	key := kc.Keys[pos]
	if key.Revoked {
		return "key revoked"
	}
	ok, err := s.verifySignature(vc, key)
	if err != nil || !ok {
		return "signature invalid"
	}
	return ""
}

// VerifyByExistingVCs recomputes subject's verification state from the
// credentials it already holds.
func (s *Service) VerifyByExistingVCs(ctx context.Context, subject *models.User, requesterID string) (*models.Verification, error) {
	verified, err := s.HasVerifiedVerifiableCredential(ctx, subject.VerifiableCredentials)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Second)
	v := models.Verification{
		IdentityID:           subject.IdentityID,
		Verified:             verified,
		LastTimeChecked:      now,
		VerificationDate:     now,
		VerificationIssuerID: requesterID,
	}
	if err := s.store.UpdateVerification(ctx, v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification")
	}
	return &v, nil
}

// RevokeVerifiableCredential revokes the record and its key, then recomputes
// the subject's verification state from its remaining credentials.
func (s *Service) RevokeVerifiableCredential(ctx context.Context, rec models.CredentialRecord) error {
	ctx, span := s.tracer.Start(ctx, "verification.RevokeVerifiableCredential", trace.WithAttributes(
		attribute.String("subject_id", rec.VC.ID),
		attribute.Int64("credential_index", rec.CredentialIndex),
	))
	defer span.End()

	if err := s.store.RevokeCredential(ctx, rec.VC.ID, rec.VC.SignatureValue, rec.VC.Issuer); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
	}
	if err := s.store.RevokeKey(ctx, s.keys.Index(rec.CredentialIndex), s.keys.Position(rec.CredentialIndex)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential key")
	}

	if err := s.refreshVerification(ctx, rec.VC.ID); err != nil {
		return err
	}

	s.publish(ctx, models.EventCredentialRevoked, rec.VC, rec.InitiatorID)
	s.metrics.IncrementRevoked()
	ports.LogAudit(ctx, s.logger, "credential_revoked",
		"subject_id", rec.VC.ID,
		"issuer_id", rec.VC.Issuer,
		"credential_index", rec.CredentialIndex,
	)
	return nil
}

func (s *Service) refreshVerification(ctx context.Context, subjectID string) error {
	user, err := s.store.FindUser(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}
	verified, err := s.HasVerifiedVerifiableCredential(ctx, user.VerifiableCredentials)
	if err != nil {
		return err
	}
	v := models.Verification{
		IdentityID:      subjectID,
		Verified:        verified,
		LastTimeChecked: s.now().UTC().Truncate(time.Second),
	}
	if prev := user.Verification; prev != nil {
		v.VerificationDate = prev.VerificationDate
		v.VerificationIssuerID = prev.VerificationIssuerID
	}
	if err := s.store.UpdateVerification(ctx, v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification")
	}
	return nil
}

// GetLatestDocument returns the identity document of identityID.
func (s *Service) GetLatestDocument(ctx context.Context, identityID string) (*identity.Document, error) {
	if !identity.ValidID(identityID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed identity id")
	}
	rec, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return &rec.Document, nil
}

// GetIdentity returns the stored identity record, sealed key included.
func (s *Service) GetIdentity(ctx context.Context, identityID string) (*identity.Record, error) {
	rec, err := s.store.FindIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return rec, nil
}

// GetTrustedRootIDs returns the trusted root identity ids.
func (s *Service) GetTrustedRootIDs(ctx context.Context) ([]string, error) {
	roots, err := s.store.ListTrustedRoots(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trusted roots")
	}
	return roots, nil
}

func (s *Service) publish(ctx context.Context, eventType models.CredentialEventType, vc models.VerifiableCredential, initiatorID string) {
	if s.events == nil {
		return
	}
	event := models.CredentialEvent{
		ID:              ulid.Make().String(),
		Type:            eventType,
		SubjectID:       vc.ID,
		IssuerID:        vc.Issuer,
		InitiatorID:     initiatorID,
		CredentialIndex: vc.CredentialIndex,
		SignatureValue:  vc.SignatureValue,
		OccurredAt:      s.now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to append credential event",
			"error", err,
			"event_type", string(eventType),
			"subject_id", vc.ID,
		)
	}
}
