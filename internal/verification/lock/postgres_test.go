package lock

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"
)

type PostgresBackendSuite struct {
	suite.Suite
	mock    sqlmock.Sqlmock
	backend *PostgresBackend
	now     time.Time
}

func TestPostgresBackendSuite(t *testing.T) {
	suite.Run(t, new(PostgresBackendSuite))
}

func (s *PostgresBackendSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.mock = mock
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.backend = NewPostgresBackend(db)
	s.backend.now = func() time.Time { return s.now }
}

func (s *PostgresBackendSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

var insertLock = regexp.QuoteMeta(`INSERT INTO concurrency_locks (name, owner, created_at, expires_at)`)

func (s *PostgresBackendSuite) TestTryAcquire() {
	s.Run("free or expired row is taken", func() {
		s.mock.ExpectExec(insertLock).
			WithArgs("credential-index", "owner-1", s.now, s.now.Add(55*time.Second)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := s.backend.TryAcquire(context.Background(), "credential-index", "owner-1", 55*time.Second)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("live row is left alone", func() {
		s.mock.ExpectExec(insertLock).WillReturnResult(sqlmock.NewResult(0, 0))
		ok, err := s.backend.TryAcquire(context.Background(), "credential-index", "owner-2", 55*time.Second)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("database error surfaces", func() {
		s.mock.ExpectExec(insertLock).WillReturnError(errors.New("boom"))
		_, err := s.backend.TryAcquire(context.Background(), "credential-index", "owner-3", 55*time.Second)
		s.Error(err)
	})
}

func (s *PostgresBackendSuite) TestReleaseDeletesOwnRow() {
	s.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM concurrency_locks WHERE name = $1 AND owner = $2`)).
		WithArgs("root-bootstrap", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.backend.Release(context.Background(), "root-bootstrap", "owner-1"))
}
