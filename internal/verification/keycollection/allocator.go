// Package keycollection partitions the monotonically growing credential index
// into fixed-size key collection buckets and creates buckets on first use.
package keycollection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"attest/internal/identity"
	"attest/internal/verification/metrics"
	"attest/internal/verification/models"
	"attest/internal/verification/ports"
	"attest/pkg/platform/sentinel"
)

// ErrAllocationFailed is returned when a bucket cannot be read or created.
var ErrAllocationFailed = errors.New("key collection allocation failed")

// KeyGenerator creates key pairs for new buckets.
type KeyGenerator interface {
	GenerateKeyPair() (identity.KeyPair, error)
}

// Allocator maps credential indices to buckets and fetches or creates them.
type Allocator struct {
	size    int
	store   ports.KeyCollectionStore
	keys    KeyGenerator
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Allocator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) {
		a.metrics = m
	}
}

// New constructs an Allocator. size is fixed for the deployment's lifetime.
func New(size int, store ports.KeyCollectionStore, keys KeyGenerator, opts ...Option) (*Allocator, error) {
	if size <= 0 {
		return nil, fmt.Errorf("key collection size must be positive, got %d", size)
	}
	if store == nil {
		return nil, fmt.Errorf("key collection store is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("key generator is required")
	}
	a := &Allocator{size: size, store: store, keys: keys, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Size returns the bucket size.
func (a *Allocator) Size() int {
	return a.size
}

// Index returns floor(credentialIndex / size).
func (a *Allocator) Index(credentialIndex int64) int64 {
	size := int64(a.size)
	q := credentialIndex / size
	if credentialIndex%size != 0 && credentialIndex < 0 {
		q--
	}
	return q
}

// Position returns the slot of credentialIndex within its bucket.
func (a *Allocator) Position(credentialIndex int64) int {
	size := int64(a.size)
	return int(((credentialIndex % size) + size) % size)
}

// Get returns bucket index, creating it with size fresh key pairs if it does
// not exist. Concurrent creators of the same bucket in other processes are
// resolved by the store's uniqueness constraint: the loser re-reads.
//
// Callers in this process share one fetch per bucket. The shared fetch does
// not inherit any caller's cancellation; each caller stops waiting when its
// own ctx is done.
func (a *Allocator) Get(ctx context.Context, index int64) (*models.KeyCollection, error) {
	flight := a.group.DoChan(strconv.FormatInt(index, 10), func() (any, error) {
		return a.fetchOrCreate(context.WithoutCancel(ctx), index)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: bucket %d: %w", ErrAllocationFailed, index, ctx.Err())
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.KeyCollection), nil
	}
}

func (a *Allocator) fetchOrCreate(ctx context.Context, index int64) (*models.KeyCollection, error) {
	kc, err := a.store.FindKeyCollection(ctx, index)
	if err == nil {
		return kc, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("%w: find bucket %d: %w", ErrAllocationFailed, index, err)
	}

	fresh, err := a.generate(index)
	if err != nil {
		return nil, fmt.Errorf("%w: generate bucket %d: %w", ErrAllocationFailed, index, err)
	}

	err = a.store.CreateKeyCollection(ctx, *fresh)
	switch {
	case err == nil:
		a.metrics.IncrementKeyCollectionsCreated()
		if a.logger != nil {
			a.logger.InfoContext(ctx, "key collection created", "index", index, "size", a.size)
		}
		return fresh, nil
	case errors.Is(err, sentinel.ErrConflict):
		kc, err = a.store.FindKeyCollection(ctx, index)
		if err != nil {
			return nil, fmt.Errorf("%w: reload bucket %d: %w", ErrAllocationFailed, index, err)
		}
		return kc, nil
	default:
		return nil, fmt.Errorf("%w: create bucket %d: %w", ErrAllocationFailed, index, err)
	}
}

func (a *Allocator) generate(index int64) (*models.KeyCollection, error) {
	keys := make([]models.Key, a.size)
	for i := range keys {
		kp, err := a.keys.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		keys[i] = models.Key{Position: i, PublicKey: kp.Public, SecretKey: kp.Secret}
	}
	return &models.KeyCollection{
		Index:     index,
		Size:      a.size,
		Keys:      keys,
		CreatedAt: a.now().UTC().Truncate(time.Microsecond),
	}, nil
}
