package jwttoken

import (
	"attest/pkg/platform/middleware/auth"
)

// JWTServiceAdapter adapts JWTService to the middleware's JWTValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*auth.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.JWTClaims{
		IdentityID: claims.IdentityID,
		JTI:        claims.ID,
	}, nil
}
