package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attest/internal/authentication"
	"attest/internal/identity"
	jwttoken "attest/internal/jwt_token"
	"attest/internal/platform/config"
	"attest/internal/platform/httpserver"
	"attest/internal/platform/logger"
	platformmetrics "attest/internal/platform/metrics"
	"attest/internal/verification/authorization"
	"attest/internal/verification/bootstrap"
	"attest/internal/verification/challenge"
	"attest/internal/verification/handler"
	"attest/internal/verification/keycollection"
	"attest/internal/verification/lock"
	"attest/internal/verification/metrics"
	"attest/internal/verification/service"
)

// main wires high-level dependencies, bootstraps the root identity and serves
// the verification API. Business logic lives in internal/verification.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)

	backends, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	provider, err := identity.NewProvider(cfg.ServerSecret)
	if err != nil {
		return fmt.Errorf("identity provider: %w", err)
	}
	keys, err := keycollection.New(cfg.KeyCollectionSize, backends.store, provider,
		keycollection.WithLogger(log),
		keycollection.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("key collections: %w", err)
	}
	locker, err := lock.New(backends.lockBackend, cfg.LockTTL,
		lock.WithLogger(log),
		lock.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}

	deps := service.Deps{
		Store:      backends.store,
		Keys:       keys,
		Identities: provider,
		Locker:     locker,
		Events:     backends.events,
	}
	svc, err := service.New(service.Settings{
		ServerSecret:      cfg.ServerSecret,
		KeyCollectionSize: cfg.KeyCollectionSize,
	}, deps, service.WithLogger(log), service.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("verification service: %w", err)
	}

	verifier, err := challenge.New(provider, challenge.WithLogger(log))
	if err != nil {
		return fmt.Errorf("challenge verifier: %w", err)
	}
	boot, err := bootstrap.New(cfg.ServerIdentityFile, deps, svc, verifier,
		bootstrap.WithLogger(log),
		bootstrap.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	outcome, err := boot.Run(ctx)
	if err != nil {
		return fmt.Errorf("root identity bootstrap: %w", err)
	}
	log.Info("root identity ready", "root_id", outcome.RootID, "created", outcome.Created)

	svc = svc.WithServerIdentity(outcome.RootID)
	engine, err := authorization.New(cfg.AuthorizationTypes, svc, authorization.NewStoreAdminAuthorizer(backends.store),
		authorization.WithLogger(log),
		authorization.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("authorization engine: %w", err)
	}
	workflow, err := service.NewWorkflow(svc, engine, service.WithWorkflowLogger(log))
	if err != nil {
		return fmt.Errorf("workflow: %w", err)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	authn, err := authentication.New(svc, verifier, jwtService, backends.lockBackend,
		authentication.WithLogger(log),
		authentication.WithChallengeTTL(cfg.ChallengeTTL),
		authentication.WithTokenTTL(cfg.AccessTokenTTL),
	)
	if err != nil {
		return fmt.Errorf("authentication: %w", err)
	}
	opts := []handler.Option{
		handler.WithAuthentication(authn),
		handler.WithMetricsHandler(promhttp.Handler()),
		handler.WithHTTPMetrics(platformmetrics.NewHTTP(nil)),
	}
	for name, check := range backends.health {
		opts = append(opts, handler.WithHealthCheck(name, check))
	}
	h := handler.New(workflow, svc, jwttoken.NewJWTServiceAdapter(jwtService), log, opts...)

	router := chi.NewRouter()
	h.Register(router)
	srv := httpserver.New(cfg.Addr, router)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting attest", "addr", cfg.Addr, "storage", backends.kind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}
