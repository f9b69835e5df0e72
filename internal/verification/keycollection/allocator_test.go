package keycollection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/identity"
	"attest/internal/verification/models"
	"attest/internal/verification/store/memory"
	"attest/pkg/platform/sentinel"
)

type countingKeys struct {
	n    atomic.Int64
	fail error
}

func (c *countingKeys) GenerateKeyPair() (identity.KeyPair, error) {
	if c.fail != nil {
		return identity.KeyPair{}, c.fail
	}
	n := c.n.Add(1)
	return identity.KeyPair{Public: fmt.Sprintf("pub-%d", n), Secret: fmt.Sprintf("sec-%d", n)}, nil
}

// racingStore reports not-found on the first read and conflict on create,
// simulating another process winning the bucket.
type racingStore struct {
	*memory.Store
	reads atomic.Int64
}

func (r *racingStore) FindKeyCollection(ctx context.Context, index int64) (*models.KeyCollection, error) {
	if r.reads.Add(1) == 1 {
		return nil, sentinel.ErrNotFound
	}
	return r.Store.FindKeyCollection(ctx, index)
}

type brokenStore struct {
	*memory.Store
}

func (brokenStore) FindKeyCollection(context.Context, int64) (*models.KeyCollection, error) {
	return nil, sentinel.ErrUnavailable
}

// gatedStore holds every read until release is closed and then fails reads
// whose ctx has been cancelled.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (g *gatedStore) FindKeyCollection(ctx context.Context, index int64) (*models.KeyCollection, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.FindKeyCollection(ctx, index)
}

type AllocatorSuite struct {
	suite.Suite
	store *memory.Store
	keys  *countingKeys
	ctx   context.Context
}

func TestAllocatorSuite(t *testing.T) {
	suite.Run(t, new(AllocatorSuite))
}

func (s *AllocatorSuite) SetupTest() {
	s.store = memory.New()
	s.keys = &countingKeys{}
	s.ctx = context.Background()
}

func (s *AllocatorSuite) newAllocator(size int) *Allocator {
	a, err := New(size, s.store, s.keys)
	s.Require().NoError(err)
	return a
}

func (s *AllocatorSuite) TestNewValidatesInput() {
	_, err := New(0, s.store, s.keys)
	s.Error(err)
	_, err = New(10, nil, s.keys)
	s.Error(err)
	_, err = New(10, s.store, nil)
	s.Error(err)
}

func (s *AllocatorSuite) TestIndexAndPosition() {
	a := s.newAllocator(100)
	cases := []struct {
		credentialIndex int64
		bucket          int64
		position        int
	}{
		{0, 0, 0},
		{99, 0, 99},
		{100, 1, 0},
		{250, 2, 50},
	}
	for _, tc := range cases {
		s.Run(fmt.Sprintf("index %d", tc.credentialIndex), func() {
			s.Equal(tc.bucket, a.Index(tc.credentialIndex))
			s.Equal(tc.position, a.Position(tc.credentialIndex))
		})
	}
}

func (s *AllocatorSuite) TestIndexIsMonotonic() {
	a := s.newAllocator(7)
	prev := a.Index(0)
	for i := int64(1); i < 500; i++ {
		cur := a.Index(i)
		s.GreaterOrEqual(cur, prev)
		s.Equal(cur, a.Index(i))
		prev = cur
	}
}

func (s *AllocatorSuite) TestGetCreatesOnceAndThenReads() {
	a := s.newAllocator(3)

	first, err := a.Get(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(first.Keys, 3)
	s.Equal(int64(3), s.keys.n.Load())

	second, err := a.Get(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(first.Keys, second.Keys)
	s.Equal(int64(3), s.keys.n.Load(), "existing bucket must not be regenerated")
}

func (s *AllocatorSuite) TestConcurrentGetYieldsOneBucket() {
	a := s.newAllocator(5)

	var wg sync.WaitGroup
	results := make([]*models.KeyCollection, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kc, err := a.Get(s.ctx, 4)
			s.NoError(err)
			results[i] = kc
		}(i)
	}
	wg.Wait()

	stored, err := s.store.FindKeyCollection(s.ctx, 4)
	s.Require().NoError(err)
	for _, kc := range results {
		s.Require().NotNil(kc)
		s.Equal(stored.Keys, kc.Keys)
	}
}

func (s *AllocatorSuite) TestCancelledCallerDoesNotFailWaiters() {
	store := &gatedStore{Store: s.store, entered: make(chan struct{}), release: make(chan struct{})}
	a, err := New(2, store, s.keys)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := a.Get(ctx, 3)
		firstErr <- err
	}()
	<-store.entered

	type result struct {
		kc  *models.KeyCollection
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		kc, err := a.Get(s.ctx, 3)
		waiter <- result{kc, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err = <-firstErr
	s.ErrorIs(err, ErrAllocationFailed)
	s.ErrorIs(err, context.Canceled)

	close(store.release)
	res := <-waiter
	s.Require().NoError(res.err)
	s.Len(res.kc.Keys, 2)

	stored, err := s.store.FindKeyCollection(s.ctx, 3)
	s.Require().NoError(err)
	s.Equal(stored.Keys, res.kc.Keys)
}

func (s *AllocatorSuite) TestConflictRereadsWinner() {
	winner := models.KeyCollection{Index: 1, Size: 2, Keys: []models.Key{{Position: 0, PublicKey: "w0"}, {Position: 1, PublicKey: "w1"}}}
	s.Require().NoError(s.store.CreateKeyCollection(s.ctx, winner))

	a, err := New(2, &racingStore{Store: s.store}, s.keys)
	s.Require().NoError(err)

	kc, err := a.Get(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("w0", kc.Keys[0].PublicKey)
}

func (s *AllocatorSuite) TestFailuresWrapAllocationFailed() {
	s.Run("store unavailable", func() {
		a, err := New(2, brokenStore{Store: s.store}, s.keys)
		s.Require().NoError(err)
		_, err = a.Get(s.ctx, 0)
		s.ErrorIs(err, ErrAllocationFailed)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})

	s.Run("key generation fails", func() {
		a, err := New(2, s.store, &countingKeys{fail: errors.New("entropy")})
		s.Require().NoError(err)
		_, err = a.Get(s.ctx, 9)
		s.ErrorIs(err, ErrAllocationFailed)

		_, err = s.store.FindKeyCollection(s.ctx, 9)
		s.ErrorIs(err, sentinel.ErrNotFound, "partial bucket must not be persisted")
	})
}
