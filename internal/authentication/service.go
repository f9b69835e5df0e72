// Package authentication exchanges a signed challenge for an access token.
//
// A caller asks for a challenge bound to its identity id, signs the challenge
// string with the secret key it received at registration and sends both back.
// The signature is checked against the identity's stored public key and each
// challenge is accepted once.
package authentication

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attest/internal/identity"
	jwttoken "attest/internal/jwt_token"
	dErrors "attest/pkg/domain-errors"
)

const (
	defaultChallengeTTL = 2 * time.Minute
	defaultTokenTTL     = time.Hour

	usedChallengePrefix = "auth-challenge:"
)

// Identities resolves stored identity records.
type Identities interface {
	GetIdentity(ctx context.Context, identityID string) (*identity.Record, error)
}

// ProofVerifier checks a holder's multibase signature over msg.
type ProofVerifier interface {
	VerifyProof(publicKey string, msg []byte, signature string) bool
}

// Tokens mints and parses challenge and access tokens.
type Tokens interface {
	GenerateChallengeToken(identityID string, expiresIn time.Duration) (string, error)
	ValidateChallengeToken(token string) (*jwttoken.Claims, error)
	GenerateAccessToken(identityID string, expiresIn time.Duration) (string, error)
}

// UsedChallenges records consumed challenge ids until they expire. Any
// lock.Backend fits.
type UsedChallenges interface {
	TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
}

// Challenge is handed to the caller to sign.
type Challenge struct {
	IdentityID string    `json:"identityId"`
	Challenge  string    `json:"challenge"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ProofRequest carries the signed challenge.
type ProofRequest struct {
	IdentityID string
	Challenge  string
	Signature  string
}

// Token is the access token issued for a valid proof.
type Token struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// Service issues challenges and redeems ownership proofs.
type Service struct {
	identities   Identities
	verifier     ProofVerifier
	tokens       Tokens
	used         UsedChallenges
	logger       *slog.Logger
	challengeTTL time.Duration
	tokenTTL     time.Duration
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithChallengeTTL(d time.Duration) Option {
	return func(s *Service) {
		s.challengeTTL = d
	}
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		s.tokenTTL = d
	}
}

// New constructs a Service.
func New(identities Identities, verifier ProofVerifier, tokens Tokens, used UsedChallenges, opts ...Option) (*Service, error) {
	if identities == nil || verifier == nil || tokens == nil || used == nil {
		return nil, fmt.Errorf("identities, verifier, tokens and used challenge store are required")
	}
	s := &Service{
		identities:   identities,
		verifier:     verifier,
		tokens:       tokens,
		used:         used,
		logger:       slog.Default(),
		challengeTTL: defaultChallengeTTL,
		tokenTTL:     defaultTokenTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.challengeTTL <= 0 || s.tokenTTL <= 0 {
		return nil, fmt.Errorf("challenge and token lifetimes must be positive")
	}
	return s, nil
}

// Challenge issues a challenge for a registered identity.
func (s *Service) Challenge(ctx context.Context, identityID string) (*Challenge, error) {
	if !identity.ValidID(identityID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed identity id")
	}
	if _, err := s.identities.GetIdentity(ctx, identityID); err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.challengeTTL)
	token, err := s.tokens.GenerateChallengeToken(identityID, s.challengeTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue challenge")
	}
	return &Challenge{IdentityID: identityID, Challenge: token, ExpiresAt: expiresAt.UTC()}, nil
}

// ProveOwnership redeems a signed challenge for an access token.
func (s *Service) ProveOwnership(ctx context.Context, req ProofRequest) (*Token, error) {
	if req.IdentityID == "" || req.Challenge == "" || req.Signature == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "identityId, challenge and signature are required")
	}
	claims, err := s.tokens.ValidateChallengeToken(req.Challenge)
	if err != nil {
		return nil, err
	}
	if claims.IdentityID != req.IdentityID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "challenge was issued to another identity")
	}

	rec, err := s.identities.GetIdentity(ctx, req.IdentityID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown identity")
		}
		return nil, err
	}
	if !s.verifier.VerifyProof(rec.Key.Public, []byte(req.Challenge), req.Signature) {
		s.logger.WarnContext(ctx, "ownership proof rejected", "identity_id", req.IdentityID)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "signature does not match identity key")
	}

	remaining := time.Second
	if claims.ExpiresAt != nil {
		remaining = max(claims.ExpiresAt.Sub(s.now()), time.Second)
	}
	fresh, err := s.used.TryAcquire(ctx, usedChallengePrefix+claims.ID, req.IdentityID, remaining)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record challenge use")
	}
	if !fresh {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "challenge already used")
	}

	access, err := s.tokens.GenerateAccessToken(req.IdentityID, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	s.logger.InfoContext(ctx, "access token issued", "identity_id", req.IdentityID)
	return &Token{AccessToken: access, TokenType: "Bearer", ExpiresIn: int64(s.tokenTTL / time.Second)}, nil
}
