package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/multiformats/go-multibase"
	"github.com/stretchr/testify/suite"
)

type ProviderSuite struct {
	suite.Suite
	provider *Provider
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func (s *ProviderSuite) SetupTest() {
	var err error
	s.provider, err = NewProvider("server-secret")
	s.Require().NoError(err)
}

func (s *ProviderSuite) TestNewProvider() {
	s.Run("empty server secret is rejected", func() {
		_, err := NewProvider("")
		s.Error(err)
	})
}

func (s *ProviderSuite) TestCreateIdentity() {
	rec, err := s.provider.CreateIdentity(context.Background())
	s.Require().NoError(err)

	s.True(strings.HasPrefix(rec.Document.ID, "did:key:z"))
	s.True(ValidID(rec.Document.ID))
	s.Require().Len(rec.Document.VerificationMethod, 1)
	s.Equal(rec.Key.Public, rec.Document.VerificationMethod[0].PublicKeyMultibase)
	s.NotEmpty(rec.Key.Secret)

	s.Run("cancelled context fails", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.provider.CreateIdentity(ctx)
		s.Error(err)
	})
}

func (s *ProviderSuite) TestSignVerifyRoundTrip() {
	kp, err := s.provider.GenerateKeyPair()
	s.Require().NoError(err)

	msg := []byte("challenge")
	sig, err := s.provider.Sign(kp.Secret, msg)
	s.Require().NoError(err)

	ok, err := s.provider.Verify(kp.Public, msg, sig)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.provider.Verify(kp.Public, []byte("other"), sig)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ProviderSuite) TestExportSecret() {
	kp, err := s.provider.GenerateKeyPair()
	s.Require().NoError(err)

	exported, err := s.provider.ExportSecret(kp.Secret)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(exported, "z"))

	s.Run("holder signature verifies against the public key", func() {
		encoded, err := SignWithSecret(exported, []byte("nonce"))
		s.Require().NoError(err)
		_, sig, err := multibase.Decode(encoded)
		s.Require().NoError(err)

		ok, err := s.provider.Verify(kp.Public, []byte("nonce"), sig)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("public key is not accepted as a secret", func() {
		_, err := SignWithSecret(kp.Public, []byte("nonce"))
		s.Error(err)
	})

	s.Run("sealed key from another server fails", func() {
		other, err := NewProvider("rotated-secret")
		s.Require().NoError(err)
		_, err = other.ExportSecret(kp.Secret)
		s.Error(err)
	})
}

func (s *ProviderSuite) TestSignWithDifferentServerSecret() {
	kp, err := s.provider.GenerateKeyPair()
	s.Require().NoError(err)

	other, err := NewProvider("rotated-secret")
	s.Require().NoError(err)

	_, err = other.Sign(kp.Secret, []byte("challenge"))
	s.Error(err)
}

func (s *ProviderSuite) TestSignRejectsWrongLengthKey() {
	sealed, err := s.provider.lock.Seal([]byte("too-short"))
	s.Require().NoError(err)

	_, err = s.provider.Sign(sealed, []byte("challenge"))
	s.Error(err)
}

func (s *ProviderSuite) TestDecodePublicKey() {
	s.Run("rejects non multibase input", func() {
		_, err := DecodePublicKey("not-multibase!")
		s.Error(err)
	})
	s.Run("rejects wrong codec", func() {
		s.False(ValidID("did:key:zQ3s"))
		s.False(ValidID("did:web:example.com"))
	})
}
