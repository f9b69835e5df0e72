package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"attest/internal/verification/authorization"
	"attest/internal/verification/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
)

// CreateRequest is a request to verify SubjectID.
type CreateRequest struct {
	SubjectID       string
	InitiatorVC     *models.VerifiableCredential
	CheckExistingVC bool
	Requester       *models.User
}

// CreateResult holds either the issued credential or, when the subject was
// re-evaluated from its existing credentials, the new verification state.
type CreateResult struct {
	Credential   *models.VerifiableCredential
	Verification *models.Verification
}

// RevokeRequest identifies the credential to revoke.
type RevokeRequest struct {
	SubjectID      string
	SignatureValue string
	Requester      *models.User
}

// Workflow gates the credential core with the authorization engine.
type Workflow struct {
	svc    *Service
	engine *authorization.Engine
	logger *slog.Logger
}

type WorkflowOption func(*Workflow)

func WithWorkflowLogger(logger *slog.Logger) WorkflowOption {
	return func(w *Workflow) {
		w.logger = logger
	}
}

func NewWorkflow(svc *Service, engine *authorization.Engine, opts ...WorkflowOption) (*Workflow, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("authorization engine is required")
	}
	if svc.settings.ServerIdentityID == "" {
		return nil, fmt.Errorf("server identity id is required")
	}
	w := &Workflow{svc: svc, engine: engine}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Requester loads the authenticated caller.
func (w *Workflow) Requester(ctx context.Context, identityID string) (*models.User, error) {
	user, err := w.svc.store.FindUser(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown requester")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load requester")
	}
	return user, nil
}

// CreateVerifiableCredential authorizes and issues a credential for the
// subject. Without an initiator credential and with CheckExistingVC set, the
// subject is instead re-evaluated from the credentials it already holds.
func (w *Workflow) CreateVerifiableCredential(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Requester == nil {
		req.Requester = &models.User{}
	}
	subject, err := w.svc.store.FindUser(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}

	initiatorID := initiatorOf(req)
	if initiatorID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no initiator id could be found")
	}

	if req.InitiatorVC == nil && req.CheckExistingVC {
		v, err := w.svc.VerifyByExistingVCs(ctx, subject, req.Requester.IdentityID)
		if err != nil {
			return nil, err
		}
		return &CreateResult{Verification: v}, nil
	}

	res := w.engine.IsAuthorizedToVerify(ctx, authorization.VerifyRequest{
		Subject:     subject,
		InitiatorVC: req.InitiatorVC,
		Requester:   req.Requester,
	})
	if err := res.Err(); err != nil {
		return nil, err
	}

	vc, err := w.svc.VerifyIdentity(ctx, subject, w.svc.settings.ServerIdentityID, initiatorID)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Credential: vc}, nil
}

// RevokeVerification revokes a credential issued by this server.
func (w *Workflow) RevokeVerification(ctx context.Context, req RevokeRequest) error {
	if req.SubjectID == "" || req.SignatureValue == "" {
		return dErrors.New(dErrors.CodeBadRequest, "subjectId and signatureValue are required")
	}
	rec, err := w.svc.store.FindCredential(ctx, req.SubjectID, req.SignatureValue, w.svc.settings.ServerIdentityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no vc found to revoke the verification")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}

	res := w.engine.IsAuthorizedToRevoke(ctx, *rec, req.Requester)
	if err := res.Err(); err != nil {
		return err
	}
	return w.svc.RevokeVerifiableCredential(ctx, *rec)
}

func initiatorOf(req CreateRequest) string {
	if vc := req.InitiatorVC; vc != nil && vc.CredentialSubject != nil && vc.CredentialSubject.ID != "" {
		return vc.CredentialSubject.ID
	}
	return req.Requester.IdentityID
}
