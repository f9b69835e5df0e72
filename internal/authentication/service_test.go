package authentication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/identity"
	jwttoken "attest/internal/jwt_token"
	"attest/internal/verification/challenge"
	"attest/internal/verification/lock"
	dErrors "attest/pkg/domain-errors"
)

type identityMap map[string]*identity.Record

func (m identityMap) GetIdentity(_ context.Context, id string) (*identity.Record, error) {
	rec, ok := m[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	return rec, nil
}

type failingUsed struct{}

func (failingUsed) TryAcquire(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("backend down")
}

type AuthenticationSuite struct {
	suite.Suite
	ctx      context.Context
	provider *identity.Provider
	jwt      *jwttoken.JWTService
	verifier *challenge.Verifier
	ids      identityMap
	svc      *Service
	holder   identity.Record
	secret   string
}

func TestAuthenticationSuite(t *testing.T) {
	suite.Run(t, new(AuthenticationSuite))
}

func (s *AuthenticationSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.provider, err = identity.NewProvider("server-secret")
	s.Require().NoError(err)
	s.jwt = jwttoken.NewJWTService("test-signing-key", "attest", "attest-api")
	s.verifier, err = challenge.New(s.provider)
	s.Require().NoError(err)

	s.holder, err = s.provider.CreateIdentity(s.ctx)
	s.Require().NoError(err)
	s.secret, err = s.provider.ExportSecret(s.holder.Key.Secret)
	s.Require().NoError(err)
	s.ids = identityMap{s.holder.Document.ID: &s.holder}

	s.svc, err = New(s.ids, s.verifier, s.jwt, lock.NewMemoryBackend(), WithTokenTTL(10*time.Minute))
	s.Require().NoError(err)
}

// prove fetches a challenge for the holder and signs it with secret.
func (s *AuthenticationSuite) prove(secret string) (ProofRequest, error) {
	ch, err := s.svc.Challenge(s.ctx, s.holder.Document.ID)
	if err != nil {
		return ProofRequest{}, err
	}
	sig, err := identity.SignWithSecret(secret, []byte(ch.Challenge))
	if err != nil {
		return ProofRequest{}, err
	}
	return ProofRequest{IdentityID: s.holder.Document.ID, Challenge: ch.Challenge, Signature: sig}, nil
}

// =============================================================================
// Construction
// =============================================================================

func (s *AuthenticationSuite) TestNewValidates() {
	_, err := New(nil, s.verifier, s.jwt, lock.NewMemoryBackend())
	s.Error(err)
	_, err = New(s.ids, s.verifier, s.jwt, lock.NewMemoryBackend(), WithChallengeTTL(0))
	s.Error(err)
}

// =============================================================================
// Challenge
// =============================================================================

func (s *AuthenticationSuite) TestChallenge() {
	s.Run("registered identity gets a bound challenge", func() {
		ch, err := s.svc.Challenge(s.ctx, s.holder.Document.ID)
		s.Require().NoError(err)
		s.Equal(s.holder.Document.ID, ch.IdentityID)
		s.True(ch.ExpiresAt.After(time.Now()))

		claims, err := s.jwt.ValidateChallengeToken(ch.Challenge)
		s.Require().NoError(err)
		s.Equal(s.holder.Document.ID, claims.IdentityID)
	})

	s.Run("malformed id is a bad request", func() {
		_, err := s.svc.Challenge(s.ctx, "not-a-did")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown identity is not found", func() {
		other, err := s.provider.CreateIdentity(s.ctx)
		s.Require().NoError(err)
		_, err = s.svc.Challenge(s.ctx, other.Document.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// ProveOwnership
// =============================================================================

func (s *AuthenticationSuite) TestProveOwnershipIssuesAccessToken() {
	req, err := s.prove(s.secret)
	s.Require().NoError(err)

	tok, err := s.svc.ProveOwnership(s.ctx, req)
	s.Require().NoError(err)
	s.Equal("Bearer", tok.TokenType)
	s.Equal(int64(600), tok.ExpiresIn)

	claims, err := s.jwt.ValidateToken(tok.AccessToken)
	s.Require().NoError(err)
	s.Equal(s.holder.Document.ID, claims.IdentityID)
}

func (s *AuthenticationSuite) TestChallengeIsSingleUse() {
	req, err := s.prove(s.secret)
	s.Require().NoError(err)

	_, err = s.svc.ProveOwnership(s.ctx, req)
	s.Require().NoError(err)

	_, err = s.svc.ProveOwnership(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "already used")
}

func (s *AuthenticationSuite) TestProveOwnershipRejections() {
	s.Run("missing fields", func() {
		_, err := s.svc.ProveOwnership(s.ctx, ProofRequest{IdentityID: s.holder.Document.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("signature from another key", func() {
		other, err := s.provider.CreateIdentity(s.ctx)
		s.Require().NoError(err)
		otherSecret, err := s.provider.ExportSecret(other.Key.Secret)
		s.Require().NoError(err)

		req, err := s.prove(otherSecret)
		s.Require().NoError(err)
		_, err = s.svc.ProveOwnership(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("challenge issued to another identity", func() {
		req, err := s.prove(s.secret)
		s.Require().NoError(err)
		other, err := s.provider.CreateIdentity(s.ctx)
		s.Require().NoError(err)
		s.ids[other.Document.ID] = &other

		req.IdentityID = other.Document.ID
		_, err = s.svc.ProveOwnership(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("access token passed as challenge", func() {
		access, err := s.jwt.GenerateAccessToken(s.holder.Document.ID, time.Minute)
		s.Require().NoError(err)
		sig, err := identity.SignWithSecret(s.secret, []byte(access))
		s.Require().NoError(err)

		_, err = s.svc.ProveOwnership(s.ctx, ProofRequest{IdentityID: s.holder.Document.ID, Challenge: access, Signature: sig})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("expired challenge", func() {
		expired, err := s.jwt.GenerateChallengeToken(s.holder.Document.ID, -time.Minute)
		s.Require().NoError(err)
		sig, err := identity.SignWithSecret(s.secret, []byte(expired))
		s.Require().NoError(err)

		_, err = s.svc.ProveOwnership(s.ctx, ProofRequest{IdentityID: s.holder.Document.ID, Challenge: expired, Signature: sig})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *AuthenticationSuite) TestUsedChallengeBackendFailure() {
	svc, err := New(s.ids, s.verifier, s.jwt, failingUsed{})
	s.Require().NoError(err)
	s.svc = svc

	req, err := s.prove(s.secret)
	s.Require().NoError(err)
	_, err = svc.ProveOwnership(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
