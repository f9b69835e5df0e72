package handler

import (
	"attest/internal/identity"
	"attest/internal/verification/models"
)

type CheckResponse struct {
	IsVerified bool `json:"isVerified"`
}

type TrustedRootsResponse struct {
	TrustedRoots []string `json:"trustedRoots"`
}

// VerificationResponse is returned when a subject was re-evaluated from the
// credentials it already holds instead of receiving a new one.
type VerificationResponse struct {
	Verification *models.Verification `json:"verification"`
}

// RegisterIdentityResponse carries the only copy of the new identity's
// secret key the server ever returns.
type RegisterIdentityResponse struct {
	Document  identity.Document `json:"document"`
	User      *models.User      `json:"user"`
	SecretKey string            `json:"secretKey"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
