// Package lock provides the time-boxed advisory lock guarding credential
// index allocation and root bootstrap. A lock record expires after its TTL
// and may then be taken over by any caller; there is no fencing.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"attest/internal/verification/metrics"
	"attest/internal/verification/ports"
)

// Names of the locks used by the verification module.
const (
	CredentialIndex = "credential-index"
	RootBootstrap   = "root-bootstrap"
)

// ErrNotAcquired is returned when the lock stays held past the wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// Backend performs single acquisition attempts against shared storage.
type Backend interface {
	// TryAcquire takes name for owner if it is free or expired.
	TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	// Release frees name only if owner still holds it.
	Release(ctx context.Context, name, owner string) error
}

// Locker retries a Backend with exponential backoff until the wait budget
// is spent.
type Locker struct {
	backend  Backend
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Locker)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Locker) {
		l.metrics = m
	}
}

// WithWait bounds how long Acquire keeps retrying. Defaults to the TTL, so a
// holder that died is always outwaited.
func WithWait(d time.Duration) Option {
	return func(l *Locker) {
		l.wait = d
	}
}

// WithRetryInterval sets the initial backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		l.interval = d
	}
}

func New(backend Backend, ttl time.Duration, opts ...Option) (*Locker, error) {
	if backend == nil {
		return nil, fmt.Errorf("lock backend is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}
	l := &Locker{
		backend:  backend,
		ttl:      ttl,
		wait:     ttl,
		interval: 25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Acquire blocks until name is held, the wait budget is spent or ctx ends.
func (l *Locker) Acquire(ctx context.Context, name string) (ports.Releaser, error) {
	owner := ulid.Make().String()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.interval
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = l.wait

	err := backoff.RetryNotify(func() error {
		ok, err := l.backend.TryAcquire(ctx, name, owner, l.ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		if l.logger != nil {
			l.logger.DebugContext(ctx, "lock busy, retrying", "lock", name, "retry_in", next)
		}
	})
	if err != nil {
		l.metrics.IncrementLockFailure(name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", name, ctxErr)
		}
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return &held{backend: l.backend, name: name, owner: owner}, nil
}

type held struct {
	backend Backend
	name    string
	owner   string
}

func (h *held) Release(ctx context.Context) error {
	if err := h.backend.Release(ctx, h.name, h.owner); err != nil {
		return fmt.Errorf("release lock %s: %w", h.name, err)
	}
	return nil
}
