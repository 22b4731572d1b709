// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts the bearer token, loads the user from the registry, and adds it to the context

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/vpn-gateway/internal/registry"
)

// UserLookup loads users by name. *registry.Registry satisfies it.
type UserLookup interface {
	GetUser(ctx context.Context, username string) (registry.User, bool, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// writeUnauthorized sends a 401 with the bearer challenge header.
func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates JWT tokens.
// The token subject must name an existing user; that user is attached to the
// request context as an AuthContext.
func HTTPAuthMiddleware(users UserLookup, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeUnauthorized(w, "Could not validate credentials")
				return
			}

			username, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("token rejected", "error", err)
				writeUnauthorized(w, "Could not validate credentials")
				return
			}

			user, found, err := users.GetUser(r.Context(), username)
			switch {
			case errors.Is(err, registry.ErrUnavailable):
				logger.Warn("user lookup failed", "username", username, "error", err)
				writeDetail(w, http.StatusServiceUnavailable, "Storage unavailable")
				return
			case err != nil, !found:
				writeUnauthorized(w, "Could not validate credentials")
				return
			}

			authCtx := &AuthContext{Username: user.Username, VPNConfig: user.VPNConfig}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
