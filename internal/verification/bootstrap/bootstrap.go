// Package bootstrap guarantees a usable root identity before the server
// starts serving. An existing root is validated with a key challenge; if none
// exists a new one is created, trusted and self-verified. The root identity
// file is written last, so an interrupted bootstrap is retried from scratch.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"attest/internal/verification/lock"
	"attest/internal/verification/metrics"
	"attest/internal/verification/models"
	"attest/internal/verification/service"
	"attest/pkg/platform/sentinel"
)

var (
	// ErrRootMissingInStore means the root file names an identity the store
	// does not have.
	ErrRootMissingInStore = errors.New("root identity not found in store")
	// ErrRootKeyInvalid means the root key pair failed the challenge.
	ErrRootKeyInvalid = errors.New("root identity keys cannot be verified")
)

// State is a bootstrap state machine state.
type State string

const (
	StateNoRootFile      State = "no_root_file"
	StateReadingExisting State = "reading_existing"
	StateValidating      State = "validating"
	StateValid           State = "valid"
	StateInvalid         State = "invalid"
	StateCreating        State = "creating"
	StateVerifying       State = "verifying"
	StateRegistering     State = "registering"
	StateTrustedRootSet  State = "trusted_root_set"
)

// Outcome reports the root identity in force after Run.
type Outcome struct {
	RootID  string
	Created bool
}

// RootProfile describes the user record created for a new root.
type RootProfile struct {
	Type         string
	Organization string
	Claim        json.RawMessage
}

// DefaultRootProfile is used when no profile is configured.
var DefaultRootProfile = RootProfile{
	Type:  "service",
	Claim: json.RawMessage(`{"name":"attest root identity"}`),
}

// KeypairVerifier runs the key challenge.
type KeypairVerifier interface {
	VerifyKeypair(secretKey, publicKey string) bool
}

// Bootstrapper runs the root identity state machine.
type Bootstrapper struct {
	path     string
	deps     service.Deps
	svc      *service.Service
	verifier KeypairVerifier
	profile  RootProfile
	logger   *slog.Logger
	metrics  *metrics.Metrics
	observe  func(State)
}

type Option func(*Bootstrapper)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bootstrapper) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bootstrapper) {
		b.metrics = m
	}
}

func WithRootProfile(p RootProfile) Option {
	return func(b *Bootstrapper) {
		b.profile = p
	}
}

// WithStateObserver is called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(b *Bootstrapper) {
		b.observe = fn
	}
}

// New constructs a Bootstrapper writing the root file at path.
func New(path string, deps service.Deps, svc *service.Service, verifier KeypairVerifier, opts ...Option) (*Bootstrapper, error) {
	if path == "" {
		return nil, fmt.Errorf("server identity file path is required")
	}
	if deps.Store == nil || deps.Keys == nil || deps.Locker == nil {
		return nil, fmt.Errorf("store, key allocator and locker are required")
	}
	if svc == nil {
		return nil, fmt.Errorf("verification service is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("keypair verifier is required")
	}
	b := &Bootstrapper{
		path:     path,
		deps:     deps,
		svc:      svc,
		verifier: verifier,
		profile:  DefaultRootProfile,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Run validates or creates the root identity. Any error is fatal for startup.
func (b *Bootstrapper) Run(ctx context.Context) (out Outcome, err error) {
	ctx, span := otel.Tracer("attest/verification").Start(ctx, "verification.Bootstrap")
	defer span.End()
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			b.metrics.IncrementBootstrap("failed")
		case out.Created:
			b.metrics.IncrementBootstrap("created")
		default:
			b.metrics.IncrementBootstrap("skipped")
		}
	}()

	held, err := b.deps.Locker.Acquire(ctx, lock.RootBootstrap)
	if err != nil {
		return Outcome{}, fmt.Errorf("bootstrap lock: %w", err)
	}
	defer func() {
		if relErr := held.Release(context.WithoutCancel(ctx)); relErr != nil && b.logger != nil {
			b.logger.WarnContext(ctx, "failed to release bootstrap lock", "error", relErr)
		}
	}()

	existing, err := ReadRootFile(b.path)
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil {
		return b.validateExisting(ctx, existing)
	}
	b.transition(ctx, StateNoRootFile)
	return b.createRoot(ctx)
}

func (b *Bootstrapper) validateExisting(ctx context.Context, f *RootIdentityFile) (Outcome, error) {
	b.transition(ctx, StateReadingExisting)
	rec, err := b.deps.Store.FindIdentity(ctx, f.Root)
	if err != nil {
		b.transition(ctx, StateInvalid)
		if errors.Is(err, sentinel.ErrNotFound) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrRootMissingInStore, f.Root)
		}
		return Outcome{}, fmt.Errorf("load root identity %s: %w", f.Root, err)
	}

	b.transition(ctx, StateValidating)
	if !b.verifier.VerifyKeypair(rec.Key.Secret, rec.Key.Public) {
		b.transition(ctx, StateInvalid)
		return Outcome{}, fmt.Errorf("%w: %s", ErrRootKeyInvalid, f.Root)
	}

	b.transition(ctx, StateValid)
	if b.logger != nil {
		b.logger.InfoContext(ctx, "root identity is already defined and valid", "root_id", f.Root)
	}
	return Outcome{RootID: f.Root}, nil
}

func (b *Bootstrapper) createRoot(ctx context.Context) (Outcome, error) {
	b.transition(ctx, StateCreating)
	rec, user, err := b.svc.RegisterIdentity(ctx, service.RegisterRequest{
		Role:         models.RoleAdmin,
		Type:         b.profile.Type,
		Organization: b.profile.Organization,
		Claim:        b.profile.Claim,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("create root identity: %w", err)
	}
	rootID := rec.Document.ID

	b.transition(ctx, StateVerifying)
	if !b.verifier.VerifyKeypair(rec.Key.Secret, rec.Key.Public) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrRootKeyInvalid, rootID)
	}

	b.transition(ctx, StateRegistering)
	if err := b.deps.Store.AddTrustedRoot(ctx, rootID); err != nil {
		return Outcome{}, fmt.Errorf("add trusted root: %w", err)
	}
	next, err := b.deps.Store.NextCredentialIndex(ctx, rootID)
	if err != nil {
		return Outcome{}, fmt.Errorf("read root credential index: %w", err)
	}
	if _, err := b.deps.Keys.Get(ctx, b.deps.Keys.Index(next)); err != nil {
		return Outcome{}, fmt.Errorf("allocate root key collection: %w", err)
	}
	if _, err := b.svc.VerifyIdentity(ctx, user, rootID, rootID); err != nil {
		return Outcome{}, fmt.Errorf("self-verify root identity: %w", err)
	}

	if err := WriteRootFile(b.path, RootIdentityFile{Root: rootID, Identity: rec.Document}); err != nil {
		return Outcome{}, err
	}
	b.transition(ctx, StateTrustedRootSet)
	if b.logger != nil {
		b.logger.InfoContext(ctx, "root identity created", "root_id", rootID, "file", b.path)
	}
	return Outcome{RootID: rootID, Created: true}, nil
}

func (b *Bootstrapper) transition(ctx context.Context, s State) {
	if b.logger != nil {
		b.logger.InfoContext(ctx, "root_bootstrap_state", "state", string(s))
	}
	if b.observe != nil {
		b.observe(s)
	}
}
