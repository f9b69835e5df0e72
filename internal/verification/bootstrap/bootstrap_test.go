package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"attest/internal/identity"
	"attest/internal/identity/mocks"
	"attest/internal/verification/challenge"
	"attest/internal/verification/keycollection"
	"attest/internal/verification/lock"
	"attest/internal/verification/metrics"
	"attest/internal/verification/service"
	"attest/internal/verification/store/memory"
)

const collectionSize = 3

// =============================================================================
// Root Bootstrap Test Suite
// =============================================================================
// Bootstrap gates startup, so each fatal path and the idempotent restart are
// covered against a real memory store and Ed25519 provider. The identity
// capability is mocked where a failure has to be forced.

type BootstrapSuite struct {
	suite.Suite
	ctx     context.Context
	path    string
	store   *memory.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func TestBootstrapSuite(t *testing.T) {
	suite.Run(t, new(BootstrapSuite))
}

func (s *BootstrapSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "server-identity.json")
	s.store = memory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *BootstrapSuite) newBootstrapper(caps identity.Capability, opts ...Option) *Bootstrapper {
	keys, err := keycollection.New(collectionSize, s.store, caps)
	s.Require().NoError(err)
	locker, err := lock.New(lock.NewMemoryBackend(), 55*time.Second)
	s.Require().NoError(err)
	deps := service.Deps{Store: s.store, Keys: keys, Identities: caps, Locker: locker}
	svc, err := service.New(service.Settings{KeyCollectionSize: collectionSize}, deps)
	s.Require().NoError(err)
	verifier, err := challenge.New(caps)
	s.Require().NoError(err)

	opts = append([]Option{WithLogger(s.logger), WithMetrics(s.metrics)}, opts...)
	b, err := New(s.path, deps, svc, verifier, opts...)
	s.Require().NoError(err)
	return b
}

func (s *BootstrapSuite) provider(secret string) *identity.Provider {
	p, err := identity.NewProvider(secret)
	s.Require().NoError(err)
	return p
}

func (s *BootstrapSuite) TestNewValidates() {
	_, err := New("", service.Deps{}, nil, nil)
	s.Error(err)
}

func (s *BootstrapSuite) TestCreatesRootOnFirstRun() {
	var states []State
	b := s.newBootstrapper(s.provider("secret"), WithStateObserver(func(st State) { states = append(states, st) }))

	out, err := b.Run(s.ctx)
	s.Require().NoError(err)
	s.True(out.Created)
	s.True(identity.ValidID(out.RootID))
	s.Equal([]State{StateNoRootFile, StateCreating, StateVerifying, StateRegistering, StateTrustedRootSet}, states)

	f, err := ReadRootFile(s.path)
	s.Require().NoError(err)
	s.Require().NotNil(f)
	s.Equal(out.RootID, f.Root)
	s.Equal(out.RootID, f.Identity.ID)

	roots, err := s.store.ListTrustedRoots(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{out.RootID}, roots)

	root, err := s.store.FindUser(s.ctx, out.RootID)
	s.Require().NoError(err)
	s.True(root.IsAdmin())
	s.Equal(DefaultRootProfile.Type, root.Type)
	s.Require().Len(root.VerifiableCredentials, 1)
	vc := root.VerifiableCredentials[0]
	s.Equal(out.RootID, vc.ID)
	s.Equal(out.RootID, vc.Issuer)

	kc, err := s.store.FindKeyCollection(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(kc.Keys, collectionSize)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Bootstrap.WithLabelValues("created")))
}

func (s *BootstrapSuite) TestRestartIsIdempotent() {
	caps := s.provider("secret")
	first, err := s.newBootstrapper(caps).Run(s.ctx)
	s.Require().NoError(err)

	rootsBefore, err := s.store.ListTrustedRoots(s.ctx)
	s.Require().NoError(err)
	counterBefore, err := s.store.NextCredentialIndex(s.ctx, first.RootID)
	s.Require().NoError(err)

	for i := 0; i < 2; i++ {
		var states []State
		out, err := s.newBootstrapper(caps, WithStateObserver(func(st State) { states = append(states, st) })).Run(s.ctx)
		s.Require().NoError(err)
		s.False(out.Created)
		s.Equal(first.RootID, out.RootID)
		s.Equal([]State{StateReadingExisting, StateValidating, StateValid}, states)

		roots, err := s.store.ListTrustedRoots(s.ctx)
		s.Require().NoError(err)
		s.Equal(rootsBefore, roots)
		counter, err := s.store.NextCredentialIndex(s.ctx, first.RootID)
		s.Require().NoError(err)
		s.Equal(counterBefore, counter)
	}
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Bootstrap.WithLabelValues("skipped")))
}

func (s *BootstrapSuite) TestRootMissingInStore() {
	s.Require().NoError(WriteRootFile(s.path, RootIdentityFile{Root: "did:key:zgone"}))

	_, err := s.newBootstrapper(s.provider("secret")).Run(s.ctx)
	s.ErrorIs(err, ErrRootMissingInStore)

	roots, err := s.store.ListTrustedRoots(s.ctx)
	s.Require().NoError(err)
	s.Empty(roots, "a missing root must not be silently recreated")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Bootstrap.WithLabelValues("failed")))
}

func (s *BootstrapSuite) TestRootKeyInvalidAfterSecretChange() {
	_, err := s.newBootstrapper(s.provider("old-secret")).Run(s.ctx)
	s.Require().NoError(err)

	var states []State
	_, err = s.newBootstrapper(s.provider("new-secret"), WithStateObserver(func(st State) { states = append(states, st) })).Run(s.ctx)
	s.ErrorIs(err, ErrRootKeyInvalid)
	s.Equal(StateInvalid, states[len(states)-1])
}

func (s *BootstrapSuite) TestCreationFailureLeavesNoFile() {
	ctrl := gomock.NewController(s.T())
	caps := mocks.NewMockCapability(ctrl)
	caps.EXPECT().CreateIdentity(gomock.Any()).Return(identity.Record{}, errors.New("identity service down"))

	_, err := s.newBootstrapper(caps).Run(s.ctx)
	s.Require().Error(err)
	s.NotErrorIs(err, ErrRootKeyInvalid)

	_, statErr := os.Stat(s.path)
	s.True(os.IsNotExist(statErr))
}

func (s *BootstrapSuite) TestUnverifiableNewKeysAbortBeforeTrust() {
	ed25519Caps := s.provider("secret")
	rec, err := ed25519Caps.CreateIdentity(s.ctx)
	s.Require().NoError(err)

	ctrl := gomock.NewController(s.T())
	caps := mocks.NewMockCapability(ctrl)
	caps.EXPECT().CreateIdentity(gomock.Any()).Return(rec, nil)
	caps.EXPECT().Sign(rec.Key.Secret, gomock.Any()).Return(nil, errors.New("cannot unseal"))

	_, err = s.newBootstrapper(caps).Run(s.ctx)
	s.ErrorIs(err, ErrRootKeyInvalid)

	roots, err := s.store.ListTrustedRoots(s.ctx)
	s.Require().NoError(err)
	s.Empty(roots)
	_, statErr := os.Stat(s.path)
	s.True(os.IsNotExist(statErr))
}

func (s *BootstrapSuite) TestPartialBootstrapIsRetried() {
	ctrl := gomock.NewController(s.T())
	ed25519Caps := s.provider("secret")
	caps := mocks.NewMockCapability(ctrl)
	caps.EXPECT().CreateIdentity(gomock.Any()).DoAndReturn(ed25519Caps.CreateIdentity)
	caps.EXPECT().Sign(gomock.Any(), gomock.Any()).DoAndReturn(ed25519Caps.Sign).AnyTimes()
	caps.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(ed25519Caps.Verify).AnyTimes()
	caps.EXPECT().GenerateKeyPair().Return(identity.KeyPair{}, errors.New("entropy exhausted"))

	_, err := s.newBootstrapper(caps).Run(s.ctx)
	s.ErrorIs(err, keycollection.ErrAllocationFailed)
	_, statErr := os.Stat(s.path)
	s.True(os.IsNotExist(statErr))

	out, err := s.newBootstrapper(ed25519Caps).Run(s.ctx)
	s.Require().NoError(err)
	s.True(out.Created, "retry starts from scratch")
}

func (s *BootstrapSuite) TestRootFile() {
	s.Run("absent file reads as nil", func() {
		f, err := ReadRootFile(filepath.Join(s.T().TempDir(), "missing.json"))
		s.Require().NoError(err)
		s.Nil(f)
	})

	s.Run("malformed file is an error", func() {
		path := filepath.Join(s.T().TempDir(), "bad.json")
		s.Require().NoError(os.WriteFile(path, []byte("{"), 0o600))
		_, err := ReadRootFile(path)
		s.Error(err)
	})

	s.Run("file without root is an error", func() {
		path := filepath.Join(s.T().TempDir(), "empty.json")
		s.Require().NoError(os.WriteFile(path, []byte(`{"root":""}`), 0o600))
		_, err := ReadRootFile(path)
		s.Error(err)
	})

	s.Run("write leaves no temp files", func() {
		dir := s.T().TempDir()
		path := filepath.Join(dir, "root.json")
		s.Require().NoError(WriteRootFile(path, RootIdentityFile{Root: "did:key:zroot"}))
		entries, err := os.ReadDir(dir)
		s.Require().NoError(err)
		s.Len(entries, 1)
	})
}
