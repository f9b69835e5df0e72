package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"attest/internal/platform/config"
	"attest/internal/platform/kafka"
	"attest/internal/platform/postgres"
	"attest/internal/platform/redis"
	"attest/internal/verification/eventlog"
	"attest/internal/verification/handler"
	"attest/internal/verification/lock"
	"attest/internal/verification/ports"
	"attest/internal/verification/store/memory"
	pgstore "attest/internal/verification/store/postgres"
)

// infra holds the backing services picked from configuration. Each falls back
// to an in-process implementation when its URL is not set.
type infra struct {
	kind        string
	store       ports.StateStore
	lockBackend lock.Backend
	events      ports.EventLog
	health      map[string]handler.HealthCheck
	closers     []func()
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *infra, err error) {
	in := &infra{health: map[string]handler.HealthCheck{}}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := pgstore.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		in.kind = "postgres"
		in.store = pgstore.New(db)
		in.lockBackend = lock.NewPostgresBackend(db)
		in.health["postgres"] = db.PingContext
		in.closers = append(in.closers, func() { closeDB(db, log) })
	} else {
		log.Warn("DATABASE_URL not set, using in-memory state")
		in.kind = "memory"
		in.store = memory.New()
		in.lockBackend = lock.NewMemoryBackend()
	}

	rc, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		in.lockBackend = lock.NewRedisBackend(rc.Client)
		in.health["redis"] = rc.Health
		in.closers = append(in.closers, func() { _ = rc.Close() })
	}

	kc, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if kc != nil {
		in.events = eventlog.NewKafka(kc, cfg.Kafka.Topic)
		in.health["kafka"] = kc.Ping
		in.closers = append(in.closers, kc.Close)
	} else {
		in.events = eventlog.NewMemory()
	}
	return in, nil
}

func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("close postgres", "error", err)
	}
}
