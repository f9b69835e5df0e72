package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"attest/internal/authentication"
	"attest/internal/identity"
	platformmetrics "attest/internal/platform/metrics"
	"attest/internal/verification/models"
	"attest/internal/verification/service"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/platform/middleware/auth"
	"attest/pkg/platform/middleware/metadata"
	request "attest/pkg/platform/middleware/request"
	"attest/pkg/platform/middleware/requesttime"
	"attest/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Workflow Credentials Authenticator

// Workflow is the authorization-gated issuance and revocation flow.
type Workflow interface {
	Requester(ctx context.Context, identityID string) (*models.User, error)
	CreateVerifiableCredential(ctx context.Context, req service.CreateRequest) (*service.CreateResult, error)
	RevokeVerification(ctx context.Context, req service.RevokeRequest) error
}

// Credentials is the unauthenticated part of the verification service.
type Credentials interface {
	CheckVerifiableCredential(ctx context.Context, vc models.VerifiableCredential) bool
	GetLatestDocument(ctx context.Context, identityID string) (*identity.Document, error)
	GetTrustedRootIDs(ctx context.Context) ([]string, error)
	RegisterIdentity(ctx context.Context, req service.RegisterRequest) (*identity.Record, *models.User, error)
	ExportSecretKey(rec *identity.Record) (string, error)
}

// Authenticator trades a signed challenge for an access token.
type Authenticator interface {
	Challenge(ctx context.Context, identityID string) (*authentication.Challenge, error)
	ProveOwnership(ctx context.Context, req authentication.ProofRequest) (*authentication.Token, error)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the verification routes.
type Handler struct {
	logger       *slog.Logger
	workflow     Workflow
	credentials  Credentials
	authn        Authenticator
	jwtValidator auth.JWTValidator
	metrics      http.Handler
	httpMetrics  *platformmetrics.HTTP
	health       map[string]HealthCheck
	timeout      time.Duration
}

type Option func(*Handler)

// WithMetricsHandler exposes h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(hd *Handler) {
		hd.metrics = h
	}
}

// WithHTTPMetrics records request counts and latency for every route.
func WithHTTPMetrics(m *platformmetrics.HTTP) Option {
	return func(hd *Handler) {
		hd.httpMetrics = m
	}
}

// WithHealthCheck adds a named dependency check to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(hd *Handler) {
		hd.health[name] = check
	}
}

// WithAuthentication serves the challenge and ownership proof routes.
func WithAuthentication(a Authenticator) Option {
	return func(hd *Handler) {
		hd.authn = a
	}
}

func WithTimeout(d time.Duration) Option {
	return func(hd *Handler) {
		hd.timeout = d
	}
}

// New creates a verification Handler.
func New(workflow Workflow, credentials Credentials, jwtValidator auth.JWTValidator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:       logger,
		workflow:     workflow,
		credentials:  credentials,
		jwtValidator: jwtValidator,
		health:       map[string]HealthCheck{},
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(request.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(metadata.ClientMetadata)
	router.Use(requesttime.Middleware)
	router.Use(h.httpMetrics.Middleware)
	router.Use(chimiddleware.Timeout(h.timeout))

	router.Get("/health", h.handleHealth)
	if h.metrics != nil {
		router.Method(http.MethodGet, "/metrics", h.metrics)
	}

	router.Route("/verification", func(vr chi.Router) {
		vr.Post("/check-credential", h.handleCheckCredential)
		vr.Get("/latest-document/{identityId}", h.handleLatestDocument)
		vr.Get("/trusted-roots", h.handleTrustedRoots)

		vr.Group(func(ar chi.Router) {
			ar.Use(auth.RequireAuth(h.jwtValidator, h.logger))
			ar.Post("/verify-identity", h.handleVerifyIdentity)
			ar.Post("/revoke-verification", h.handleRevokeVerification)
		})
	})
	router.Post("/identities", h.handleRegisterIdentity)

	if h.authn != nil {
		router.Route("/authentication", func(ar chi.Router) {
			ar.Get("/challenge/{identityId}", h.handleChallenge)
			ar.Post("/prove-ownership", h.handleProveOwnership)
		})
	}

	r.Mount("/", router)
}

// requester resolves the authenticated caller set by RequireAuth.
func (h *Handler) requester(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	ctx := r.Context()
	identityID := requestcontext.IdentityID(ctx)
	if identityID == "" {
		h.logger.ErrorContext(ctx, "identity missing from context despite auth middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return nil, false
	}
	user, err := h.workflow.Requester(ctx, identityID)
	if err != nil {
		h.writeFailure(ctx, w, "failed to resolve requester", err)
		return nil, false
	}
	return user, true
}

func (h *Handler) handleVerifyIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyIdentityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	res, err := h.workflow.CreateVerifiableCredential(ctx, service.CreateRequest{
		SubjectID:       req.SubjectID,
		InitiatorVC:     req.InitiatorVC,
		CheckExistingVC: req.CheckExistingVC,
		Requester:       requester,
	})
	if err != nil {
		h.writeFailure(ctx, w, "verify identity failed", err)
		return
	}

	if res.Credential == nil {
		httputil.WriteJSON(w, http.StatusOK, VerificationResponse{Verification: res.Verification})
		return
	}
	h.logger.InfoContext(ctx, "credential issued",
		"request_id", requestID,
		"subject_id", req.SubjectID,
		"credential_index", res.Credential.CredentialIndex,
	)
	httputil.WriteJSON(w, http.StatusOK, res.Credential)
}

func (h *Handler) handleCheckCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	// Any body that does not decode to a credential is simply not verified.
	vc, ok := decodeCredential(r)
	verified := ok && h.credentials.CheckVerifiableCredential(ctx, vc)
	if !ok {
		h.logger.DebugContext(ctx, "unreadable credential submitted for check",
			"request_id", requestID,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, CheckResponse{IsVerified: verified})
}

func (h *Handler) handleRevokeVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeVerificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	err := h.workflow.RevokeVerification(ctx, service.RevokeRequest{
		SubjectID:      req.SubjectID,
		SignatureValue: req.SignatureValue,
		Requester:      requester,
	})
	if err != nil {
		h.writeFailure(ctx, w, "revoke verification failed", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLatestDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.credentials.GetLatestDocument(ctx, chi.URLParam(r, "identityId"))
	if err != nil {
		h.writeFailure(ctx, w, "latest document lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleTrustedRoots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := h.credentials.GetTrustedRootIDs(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "trusted roots lookup failed", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, TrustedRootsResponse{TrustedRoots: ids})
}

func (h *Handler) handleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterIdentityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rec, user, err := h.credentials.RegisterIdentity(ctx, req.toService())
	if err != nil {
		h.writeFailure(ctx, w, "register identity failed", err)
		return
	}
	secret, err := h.credentials.ExportSecretKey(rec)
	if err != nil {
		h.writeFailure(ctx, w, "export secret key failed", err)
		return
	}
	h.logger.InfoContext(ctx, "identity registered",
		"request_id", requestID,
		"identity_id", user.IdentityID,
	)
	httputil.WriteJSON(w, http.StatusCreated, RegisterIdentityResponse{Document: rec.Document, User: user, SecretKey: secret})
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ch, err := h.authn.Challenge(ctx, chi.URLParam(r, "identityId"))
	if err != nil {
		h.writeFailure(ctx, w, "challenge failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ch)
}

func (h *Handler) handleProveOwnership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ProveOwnershipRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tok, err := h.authn.ProveOwnership(ctx, authentication.ProofRequest{
		IdentityID: req.IdentityID,
		Challenge:  req.Challenge,
		Signature:  req.Signature,
	})
	if err != nil {
		h.writeFailure(ctx, w, "prove ownership failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tok)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				"request_id", request.GetRequestID(ctx),
				"check", name,
				"error", err,
			)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}

// writeFailure logs err at a level matching its code and writes the envelope.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation {
		h.logger.ErrorContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err,
			"code", string(code),
		)
	}
	httputil.WriteError(w, err)
}
