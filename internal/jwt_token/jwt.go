package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "attest/pkg/domain-errors"
)

// Claims represents the JWT claims for our access tokens
type Claims struct {
	IdentityID string `json:"identity_id"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// challengeAudienceSuffix keeps challenge tokens from passing as access tokens.
const challengeAudienceSuffix = ":challenge"

// GenerateAccessToken issues a token bound to an identity id.
func (s *JWTService) GenerateAccessToken(identityID string, expiresIn time.Duration) (string, error) {
	return s.generate(identityID, s.audience, expiresIn)
}

// GenerateChallengeToken issues a short-lived challenge for identityID to
// sign. It is only accepted by ValidateChallengeToken.
func (s *JWTService) GenerateChallengeToken(identityID string, expiresIn time.Duration) (string, error) {
	return s.generate(identityID, s.audience+challengeAudienceSuffix, expiresIn)
}

func (s *JWTService) generate(identityID, audience string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		IdentityID: identityID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{audience},
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.audience)
}

// ValidateChallengeToken parses a token minted by GenerateChallengeToken.
func (s *JWTService) ValidateChallengeToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.audience+challengeAudienceSuffix)
}

func (s *JWTService) validate(tokenString, audience string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(audience))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
