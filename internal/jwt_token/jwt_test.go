package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attest/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)

const identityID = "did:key:z6MkTestIdentity"

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(identityID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identityID, claims.IdentityID)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(identityID, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "other-audience")
	token, err := other.GenerateAccessToken(identityID, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ChallengeToken(t *testing.T) {
	challenge, err := jwtService.GenerateChallengeToken(identityID, time.Minute)
	require.NoError(t, err)

	claims, err := jwtService.ValidateChallengeToken(challenge)
	require.NoError(t, err)
	assert.Equal(t, identityID, claims.IdentityID)
	assert.NotEmpty(t, claims.ID)

	t.Run("challenge is not an access token", func(t *testing.T) {
		_, err := jwtService.ValidateToken(challenge)
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	})

	t.Run("access token is not a challenge", func(t *testing.T) {
		access, err := jwtService.GenerateAccessToken(identityID, time.Minute)
		require.NoError(t, err)
		_, err = jwtService.ValidateChallengeToken(access)
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
	})
}

func Test_Adapter(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(identityID, time.Hour)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identityID, claims.IdentityID)
	assert.NotEmpty(t, claims.JTI)
}
