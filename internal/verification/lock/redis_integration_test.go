//go:build integration

package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/verification/lock"
	"attest/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *lock.Locker
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	l, err := lock.New(lock.NewRedisBackend(s.redis.Client), time.Second,
		lock.WithWait(50*time.Millisecond), lock.WithRetryInterval(5*time.Millisecond))
	s.Require().NoError(err)
	s.locker = l
}

func (s *RedisLockSuite) TestExclusiveUntilReleased() {
	ctx := context.Background()
	h, err := s.locker.Acquire(ctx, lock.CredentialIndex)
	s.Require().NoError(err)

	_, err = s.locker.Acquire(ctx, lock.CredentialIndex)
	s.ErrorIs(err, lock.ErrNotAcquired)

	s.Require().NoError(h.Release(ctx))
	h2, err := s.locker.Acquire(ctx, lock.CredentialIndex)
	s.Require().NoError(err)
	s.NoError(h2.Release(ctx))
}

func (s *RedisLockSuite) TestExpiryAllowsTakeover() {
	ctx := context.Background()
	stale, err := s.locker.Acquire(ctx, lock.RootBootstrap)
	s.Require().NoError(err)

	time.Sleep(1100 * time.Millisecond)
	fresh, err := s.locker.Acquire(ctx, lock.RootBootstrap)
	s.Require().NoError(err)

	s.Require().NoError(stale.Release(ctx))
	_, err = s.locker.Acquire(ctx, lock.RootBootstrap)
	s.ErrorIs(err, lock.ErrNotAcquired, "stale owner must not release the new holder")

	s.NoError(fresh.Release(ctx))
}
