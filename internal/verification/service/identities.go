package service

import (
	"context"
	"encoding/json"
	"strings"

	"attest/internal/identity"
	"attest/internal/verification/models"
	dErrors "attest/pkg/domain-errors"
)

// RegisterRequest describes the user created with a new identity.
type RegisterRequest struct {
	Role         models.Role
	Type         string
	Organization string
	Claim        json.RawMessage
}

// RegisterIdentity creates a new identity and its user record.
func (s *Service) RegisterIdentity(ctx context.Context, req RegisterRequest) (*identity.Record, *models.User, error) {
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if req.Role != models.RoleUser && req.Role != models.RoleAdmin {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "unknown role")
	}
	if strings.TrimSpace(req.Type) == "" {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "type is required")
	}
	if len(req.Claim) > 0 && !json.Valid(req.Claim) {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "claim must be valid json")
	}

	rec, err := s.identities.CreateIdentity(ctx)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity")
	}
	if err := s.store.SaveIdentity(ctx, rec); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save identity")
	}
	user := &models.User{
		IdentityID:   rec.Document.ID,
		Role:         req.Role,
		Type:         req.Type,
		Organization: req.Organization,
		Claim:        req.Claim,
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save user")
	}
	return &rec, user, nil
}

// ExportSecretKey returns rec's secret key in the form its holder signs with.
// It is handed out once, in the registration response.
func (s *Service) ExportSecretKey(rec *identity.Record) (string, error) {
	secret, err := s.identities.ExportSecret(rec.Key.Secret)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to export secret key")
	}
	return secret, nil
}
