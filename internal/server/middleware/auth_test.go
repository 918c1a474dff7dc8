package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/doccollab/internal/server/handlers"
	"github.com/iudanet/doccollab/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

func testJWTConfig() handlers.JWTConfig {
	return handlers.JWTConfig{
		Secret:         []byte("test-secret-key-that-is-long-enough"),
		AccessTokenTTL: 15 * time.Minute,
	}
}

// testHandler is a simple handler that checks context values
func testHandler(t *testing.T, expectedActorID, expectedName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := handlers.GetActorID(r.Context())
		require.True(t, ok, "actor_id should be in context")
		assert.Equal(t, expectedActorID, actorID)

		name, ok := handlers.GetActorName(r.Context())
		require.True(t, ok, "actor_name should be in context")
		assert.Equal(t, expectedName, name)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtConfig := testJWTConfig()

	token, _, err := handlers.GenerateAccessToken(jwtConfig, "alice", "Alice")
	require.NoError(t, err)

	wrapped := AuthMiddleware(setupTestLogger(), jwtConfig)(testHandler(t, "alice", "Alice"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	jwtConfig := testJWTConfig()

	expiredCfg := jwtConfig
	expiredCfg.AccessTokenTTL = -time.Minute
	expired, _, err := handlers.GenerateAccessToken(expiredCfg, "alice", "")
	require.NoError(t, err)

	otherCfg := jwtConfig
	otherCfg.Secret = []byte("a-completely-different-secret-key")
	foreign, _, err := handlers.GenerateAccessToken(otherCfg, "alice", "")
	require.NoError(t, err)

	tests := []struct {
		name        string
		header      string
		wantMessage string
	}{
		{name: "missing header", header: "", wantMessage: "missing token"},
		{name: "no bearer prefix", header: "Token abc", wantMessage: "invalid token format"},
		{name: "bearer without token", header: "Bearer ", wantMessage: "invalid token format"},
		{name: "only scheme", header: "Bearer", wantMessage: "invalid token format"},
		{name: "garbage token", header: "Bearer not-a-jwt", wantMessage: "invalid token"},
		{name: "expired token", header: "Bearer " + expired, wantMessage: "invalid token"},
		{name: "wrong secret", header: "Bearer " + foreign, wantMessage: "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			wrapped := AuthMiddleware(setupTestLogger(), jwtConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, req)

			assert.False(t, called, "next handler must not run")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp api.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantMessage, resp.Message)
		})
	}
}

func TestAuthMiddleware_CaseInsensitiveScheme(t *testing.T) {
	jwtConfig := testJWTConfig()
	token, _, err := handlers.GenerateAccessToken(jwtConfig, "bob", "")
	require.NoError(t, err)

	wrapped := AuthMiddleware(setupTestLogger(), jwtConfig)(testHandler(t, "bob", ""))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "bearer "+token)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
