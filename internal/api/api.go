// ABOUTME: HTTP API exposing the configuration registry and user accounts
// ABOUTME: Routes live under /api/v1; errors are JSON bodies of the form {"detail": "..."}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/vpn-gateway/internal/auth"
	"github.com/2389/vpn-gateway/internal/metrics"
	"github.com/2389/vpn-gateway/internal/password"
	"github.com/2389/vpn-gateway/internal/registry"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Config holds the dependencies of the API handlers.
type Config struct {
	Registry *registry.Registry
	Hasher   password.Hasher
	Tokens   *auth.JWTVerifier
	TokenTTL time.Duration

	// RequireAuthForConfigs puts the config routes behind bearer auth.
	RequireAuthForConfigs bool

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// API serves the /api/v1 routes.
type API struct {
	registry    *registry.Registry
	hasher      password.Hasher
	tokens      *auth.JWTVerifier
	tokenTTL    time.Duration
	requireAuth bool
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// New creates the API. Registry, Hasher, and Tokens are required.
func New(cfg Config) *API {
	a := &API{
		registry:    cfg.Registry,
		hasher:      cfg.Hasher,
		tokens:      cfg.Tokens,
		tokenTTL:    cfg.TokenTTL,
		requireAuth: cfg.RequireAuthForConfigs,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	if a.metrics == nil {
		a.metrics = metrics.Nop{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 30 * time.Minute
	}
	a.logger = a.logger.With("component", "api")
	return a
}

// RegisterRoutes adds the API routes to mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	authMiddleware := auth.HTTPAuthMiddleware(a.registry, a.tokens, a.logger)

	configRoute := func(pattern string, fn http.HandlerFunc) {
		var h http.Handler = fn
		if a.requireAuth {
			h = authMiddleware(h)
		}
		a.handle(mux, pattern, h)
	}
	// The collection routes answer with and without the trailing slash.
	configRoute("POST /api/v1/config", a.handleCreateConfig)
	configRoute("POST /api/v1/config/{$}", a.handleCreateConfig)
	configRoute("GET /api/v1/config", a.handleListConfigs)
	configRoute("GET /api/v1/config/{$}", a.handleListConfigs)
	configRoute("GET /api/v1/config/{id}", a.handleGetConfig)
	configRoute("PUT /api/v1/config/{id}", a.handleUpdateConfig)
	configRoute("DELETE /api/v1/config/{id}", a.handleDeleteConfig)

	a.handle(mux, "POST /api/v1/users", http.HandlerFunc(a.handleCreateUser))
	a.handle(mux, "POST /api/v1/users/{$}", http.HandlerFunc(a.handleCreateUser))
	a.handle(mux, "POST /api/v1/users/auth", http.HandlerFunc(a.handleAuthenticate))
	a.handle(mux, "GET /api/v1/users/me", authMiddleware(http.HandlerFunc(a.handleMe)))

	if a.requireAuth {
		a.logger.Info("config routes require bearer auth")
	}
}

// handle registers h and counts its responses under the route pattern.
func (a *API) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		a.metrics.ObserveRequest(pattern, r.Method, rec.status)
	}))
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error body.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// statusFor maps registry errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, registry.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes a response that does not leak backend detail.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	logger := a.logger.With("request_id", RequestIDFromContext(r.Context()), "action", action)

	var detail string
	switch status {
	case http.StatusBadRequest:
		detail = err.Error()
	case http.StatusConflict:
		detail = "already exists"
	case http.StatusServiceUnavailable:
		logger.Warn("store unavailable", "error", err)
		detail = "Failed to " + action + ": storage unavailable"
	default:
		logger.Error("request failed", "error", err)
		detail = "Failed to " + action
	}
	writeDetail(w, status, detail)
}

// decodeBody parses a JSON request body into v, keeping numbers exact.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}
