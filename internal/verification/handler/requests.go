package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"attest/internal/verification/models"
	"attest/internal/verification/service"
	dErrors "attest/pkg/domain-errors"
)

const maxCredentialBytes = 64 << 10

// VerifyIdentityRequest is the body of POST /verification/verify-identity.
type VerifyIdentityRequest struct {
	SubjectID       string                       `json:"subjectId"`
	InitiatorVC     *models.VerifiableCredential `json:"initiatorVC,omitempty"`
	CheckExistingVC bool                         `json:"checkExistingVC"`
}

func (r *VerifyIdentityRequest) Validate() error {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subjectId is required")
	}
	return nil
}

// RevokeVerificationRequest is the body of POST /verification/revoke-verification.
type RevokeVerificationRequest struct {
	SubjectID      string `json:"subjectId"`
	SignatureValue string `json:"signatureValue"`
}

func (r *RevokeVerificationRequest) Validate() error {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	if r.SubjectID == "" || r.SignatureValue == "" {
		return dErrors.New(dErrors.CodeValidation, "subjectId and signatureValue are required")
	}
	return nil
}

// ProveOwnershipRequest is the body of POST /authentication/prove-ownership.
// Signature is the multibase signature over Challenge.
type ProveOwnershipRequest struct {
	IdentityID string `json:"identityId"`
	Challenge  string `json:"challenge"`
	Signature  string `json:"signature"`
}

func (r *ProveOwnershipRequest) Validate() error {
	r.IdentityID = strings.TrimSpace(r.IdentityID)
	if r.IdentityID == "" || r.Challenge == "" || r.Signature == "" {
		return dErrors.New(dErrors.CodeValidation, "identityId, challenge and signature are required")
	}
	return nil
}

// RegisterIdentityRequest is the body of POST /identities.
type RegisterIdentityRequest struct {
	Type         string          `json:"type"`
	Organization string          `json:"organization,omitempty"`
	Claim        json.RawMessage `json:"claim,omitempty"`
}

// toService maps the request onto a registration. Public registration
// always creates role User.
func (r *RegisterIdentityRequest) toService() service.RegisterRequest {
	return service.RegisterRequest{
		Role:         models.RoleUser,
		Type:         strings.TrimSpace(r.Type),
		Organization: strings.TrimSpace(r.Organization),
		Claim:        r.Claim,
	}
}

// decodeCredential reads a credential for checking. ok is false for any body
// that is not a credential.
func decodeCredential(r *http.Request) (models.VerifiableCredential, bool) {
	var vc models.VerifiableCredential
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialBytes+1))
	if err != nil || len(body) > maxCredentialBytes {
		return vc, false
	}
	if err := json.Unmarshal(body, &vc); err != nil {
		return vc, false
	}
	return vc, true
}
