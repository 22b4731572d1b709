// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, user lookup, and store failures

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2389/vpn-gateway/internal/registry"
)

type mockUsers struct {
	users map[string]registry.User
	err   error
}

func (m *mockUsers) GetUser(_ context.Context, username string) (registry.User, bool, error) {
	if m.err != nil {
		return registry.User{}, false, m.err
	}
	u, ok := m.users[username]
	return u, ok, nil
}

func serveWithAuth(t *testing.T, users UserLookup, header string) (*httptest.ResponseRecorder, *AuthContext) {
	t.Helper()
	var got *AuthContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(users, newTestVerifier(t), nil)(handler).ServeHTTP(rec, req)
	return rec, got
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	users := &mockUsers{users: map[string]registry.User{
		"alice": {Username: "alice", PasswordHash: "x", VPNConfig: registry.Data{"server": "vpn1"}},
	}}
	token, err := newTestVerifier(t).Generate("alice", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	rec, authCtx := serveWithAuth(t, users, "Bearer "+token)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if authCtx == nil || authCtx.Username != "alice" {
		t.Fatalf("AuthContext = %+v, want alice", authCtx)
	}
	if authCtx.VPNConfig["server"] != "vpn1" {
		t.Errorf("VPNConfig = %v", authCtx.VPNConfig)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	users := &mockUsers{users: map[string]registry.User{}}
	verifier := newTestVerifier(t)
	ghost, _ := verifier.Generate("ghost", time.Hour)
	expired, _ := verifier.Generate("alice", -time.Minute)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic YWxpY2U6c2VjcmV0"},
		{"empty token", "Bearer "},
		{"garbage", "Bearer nope"},
		{"expired", "Bearer " + expired},
		{"unknown user", "Bearer " + ghost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, authCtx := serveWithAuth(t, users, tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if authCtx != nil {
				t.Error("handler ran for a rejected request")
			}
			if rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Errorf("WWW-Authenticate = %q", rec.Header().Get("WWW-Authenticate"))
			}
			if !strings.Contains(rec.Body.String(), `"detail"`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestHTTPAuthMiddleware_StoreUnavailable(t *testing.T) {
	users := &mockUsers{err: errors.Join(registry.ErrUnavailable, errors.New("etcd down"))}
	token, _ := newTestVerifier(t).Generate("alice", time.Hour)

	rec, _ := serveWithAuth(t, users, "Bearer "+token)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"Bearer   abc  ", "abc", false},
		{"", "", true},
		{"Bearer", "", true},
		{"Token abc", "", true},
	}
	for _, tt := range tests {
		got, errMsg := extractBearerToken(tt.header)
		if (errMsg != "") != tt.wantErr || got != tt.want {
			t.Errorf("extractBearerToken(%q) = %q, %q", tt.header, got, errMsg)
		}
	}
}
