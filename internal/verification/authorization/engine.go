// Package authorization decides whether a requester may verify or revoke
// another identity's credential.
//
// Verify checks run as a fixed, ordered chain. The first failing check
// determines the rejection reason callers see, so the order is part of the
// contract.
package authorization

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"attest/internal/verification/metrics"
	"attest/internal/verification/models"
	"attest/internal/verification/ports"
)

const (
	actionVerify = "verify"
	actionRevoke = "revoke"
)

// CredentialChecker reports whether a credential is currently valid.
type CredentialChecker interface {
	CheckVerifiableCredential(ctx context.Context, vc models.VerifiableCredential) bool
}

// AdminAuthorizer decides whether requester may act on subjectID as an
// administrator.
type AdminAuthorizer interface {
	IsAuthorizedAdmin(ctx context.Context, requester *models.User, subjectID string) (bool, error)
}

// VerifyRequest carries the inputs of a verify decision. InitiatorVC is nil
// when the caller presented none.
type VerifyRequest struct {
	Subject     *models.User
	InitiatorVC *models.VerifiableCredential
	Requester   *models.User
}

type verifyCheck struct {
	name   string
	reason Reason
	pass   func(ctx context.Context, req VerifyRequest) bool
}

// Engine evaluates verify and revoke decisions.
type Engine struct {
	authTypes map[string]struct{}
	checker   CredentialChecker
	admins    AdminAuthorizer
	checks    []verifyCheck
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New constructs an Engine. authTypes is the allow-list of user types
// entitled to verify others.
func New(authTypes []string, checker CredentialChecker, admins AdminAuthorizer, opts ...Option) (*Engine, error) {
	if checker == nil {
		return nil, fmt.Errorf("credential checker is required")
	}
	if admins == nil {
		return nil, fmt.Errorf("admin authorizer is required")
	}
	e := &Engine{
		authTypes: make(map[string]struct{}, len(authTypes)),
		checker:   checker,
		admins:    admins,
	}
	for _, t := range authTypes {
		if t = strings.TrimSpace(t); t != "" {
			e.authTypes[t] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	e.checks = []verifyCheck{
		{name: "initiator_credential_present", reason: ReasonMissingCredential, pass: hasInitiatorCredential},
		{name: "requester_is_initiator", reason: ReasonIdentityMismatch, pass: requesterIsInitiator},
		{name: "authorization_type", reason: ReasonUnauthorizedType, pass: e.hasAllowedType},
		{name: "same_organization", reason: ReasonOrganizationMismatch, pass: sameOrganization},
		{name: "initiator_verified", reason: ReasonInitiatorNotVerified, pass: e.initiatorVerified},
	}
	return e, nil
}

// HasAuthorizationType reports whether userType is in the allow-list.
func (e *Engine) HasAuthorizationType(userType string) bool {
	if userType == "" {
		return false
	}
	_, ok := e.authTypes[userType]
	return ok
}

// IsAuthorizedToVerify decides whether req.Requester may verify req.Subject.
// Admins with an allow-listed type skip every other check.
func (e *Engine) IsAuthorizedToVerify(ctx context.Context, req VerifyRequest) Result {
	if req.Requester == nil {
		req.Requester = &models.User{}
	}
	if req.Requester.IsAdmin() && e.HasAuthorizationType(req.Requester.Type) {
		return e.record(ctx, actionVerify, req.Requester.IdentityID, allow())
	}
	for _, check := range e.checks {
		if !check.pass(ctx, req) {
			if e.logger != nil {
				e.logger.DebugContext(ctx, "verify check failed", "check", check.name)
			}
			return e.record(ctx, actionVerify, req.Requester.IdentityID, deny(check.reason))
		}
	}
	return e.record(ctx, actionVerify, req.Requester.IdentityID, allow())
}

// IsAuthorizedToRevoke decides whether requester may revoke rec. The
// credential's subject and its initiator may always revoke; anyone else needs
// the admin capability. Admin lookup errors deny.
func (e *Engine) IsAuthorizedToRevoke(ctx context.Context, rec models.CredentialRecord, requester *models.User) Result {
	if requester == nil {
		requester = &models.User{}
	}
	if id := requester.IdentityID; id != "" && (id == rec.VC.ID || id == rec.InitiatorID) {
		return e.record(ctx, actionRevoke, id, allow())
	}
	ok, err := e.admins.IsAuthorizedAdmin(ctx, requester, rec.VC.ID)
	if err != nil {
		if e.logger != nil {
			e.logger.WarnContext(ctx, "admin authorization lookup failed", "error", err)
		}
		ok = false
	}
	if !ok {
		return e.record(ctx, actionRevoke, requester.IdentityID, deny(ReasonNotAllowedToRevoke))
	}
	return e.record(ctx, actionRevoke, requester.IdentityID, allow())
}

func (e *Engine) record(ctx context.Context, action, requesterID string, res Result) Result {
	e.metrics.IncrementDecision(action, res.Authorized, string(res.Reason))
	if !res.Authorized {
		ports.LogAudit(ctx, e.logger, "authorization_denied",
			"action", action,
			"requester_id", requesterID,
			"reason", string(res.Reason),
		)
	}
	return res
}

func hasInitiatorCredential(_ context.Context, req VerifyRequest) bool {
	return req.InitiatorVC != nil && req.InitiatorVC.CredentialSubject != nil
}

// requesterIsInitiator rejects when the requester differs from either the
// credential subject id or the credential id.
func requesterIsInitiator(_ context.Context, req VerifyRequest) bool {
	vc := req.InitiatorVC
	id := req.Requester.IdentityID
	if id != vc.CredentialSubject.ID || id != vc.ID {
		return false
	}
	return true
}

func (e *Engine) hasAllowedType(_ context.Context, req VerifyRequest) bool {
	return e.HasAuthorizationType(req.InitiatorVC.CredentialSubject.Type) ||
		e.HasAuthorizationType(req.Requester.Type)
}

func sameOrganization(_ context.Context, req VerifyRequest) bool {
	initiatorOrg := req.InitiatorVC.CredentialSubject.Organization
	var subjectOrg string
	if req.Subject != nil {
		subjectOrg = req.Subject.Organization
	}
	if initiatorOrg == "" && subjectOrg == "" {
		return true
	}
	return initiatorOrg == subjectOrg
}

func (e *Engine) initiatorVerified(ctx context.Context, req VerifyRequest) bool {
	return e.checker.CheckVerifiableCredential(ctx, *req.InitiatorVC)
}
