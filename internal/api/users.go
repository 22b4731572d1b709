// ABOUTME: Handlers for /api/v1/users: registration, password login, and the current user
// ABOUTME: Passwords are hashed before they reach the registry and never returned

package api

import (
	"errors"
	"net/http"

	"github.com/2389/vpn-gateway/internal/auth"
	"github.com/2389/vpn-gateway/internal/password"
	"github.com/2389/vpn-gateway/internal/registry"
)

// CreateUserRequest is the body of POST /api/v1/users/.
type CreateUserRequest struct {
	Username  string        `json:"username"`
	Password  string        `json:"password"`
	VPNConfig registry.Data `json:"vpn_config"`
}

// AuthRequest is the body of POST /api/v1/users/auth.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserResponse describes the authenticated user.
type UserResponse struct {
	Username  string        `json:"username"`
	VPNConfig registry.Data `json:"vpn_config"`
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := registry.ValidateUsername(req.Username); err != nil {
		writeDetail(w, http.StatusBadRequest, "username must be 1-255 printable characters without '/'")
		return
	}
	if req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "password is required")
		return
	}

	hash, err := a.hasher.Hash(req.Password)
	if errors.Is(err, password.ErrTooLong) {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.writeError(w, r, "create user", err)
		return
	}

	if err := a.registry.CreateUser(r.Context(), req.Username, hash, req.VPNConfig); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			writeDetail(w, http.StatusConflict, "User already exists")
			return
		}
		a.writeError(w, r, "create user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User created successfully"})
}

func (a *API) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := a.registry.VerifyCredential(r.Context(), req.Username, req.Password, a.hasher.Verify)
	if err != nil {
		a.writeError(w, r, "authenticate", err)
		return
	}
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token, err := a.tokens.Generate(req.Username, a.tokenTTL)
	if err != nil {
		a.writeError(w, r, "authenticate", err)
		return
	}
	a.logger.Info("token issued", "username", req.Username, "request_id", RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user := auth.MustFromContext(r.Context())
	writeJSON(w, http.StatusOK, UserResponse{Username: user.Username, VPNConfig: user.VPNConfig})
}
