package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/internal/server/middleware"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// authedHandler builds the metadata+auth slice of the real chain with a final
// handler that records the resolved subject.
func authedHandler(subjectOut *string) http.Handler {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
		*subjectOut = reqMeta.UserID
		w.WriteHeader(http.StatusOK)
	})
	return middleware.Chain(final,
		middleware.RequestMetadataMiddleware(),
		middleware.NewAuthMiddleware(testLogger(), testSecret),
	)
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	var subject string
	handler := authedHandler(&subject)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "alice"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", subject)
}

func TestAuthAcceptsSessionCookie(t *testing.T) {
	var subject string
	handler := authedHandler(&subject)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, testSecret, "bob")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "bob", subject)
}

func TestAuthRejections(t *testing.T) {
	var subject string
	handler := authedHandler(&subject)

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong secret", signToken(t, "other-secret", "alice")},
		{"missing subject", signToken(t, testSecret, "")},
		{"garbage", "not.a.jwt"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if c.token != "" {
				req.Header.Set("Authorization", "Bearer "+c.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	var subject string
	handler := authedHandler(&subject)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConnectionLimiter(t *testing.T) {
	cfg := config.ConnectionLimitConfig{MaxPerUser: 2, Mode: "reject"}

	counts := map[string]int{"alice": 2, "bob": 1}
	counter := func(userID string) (int, error) { return counts[userID], nil }
	cycled := ""
	cycler := func(userID string) { cycled = userID }

	run := func(cfg config.ConnectionLimitConfig, subject string) *httptest.ResponseRecorder {
		final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		handler := middleware.Chain(final,
			middleware.RequestMetadataMiddleware(),
			middleware.NewAuthMiddleware(testLogger(), testSecret),
			middleware.NewConnectionLimiter(testLogger(), counter, cycler, cfg),
		)
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, subject))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Under the limit: admitted.
	require.Equal(t, http.StatusOK, run(cfg, "bob").Code)

	// At the limit in reject mode: refused.
	require.Equal(t, http.StatusTooManyRequests, run(cfg, "alice").Code)
	require.Empty(t, cycled)

	// At the limit in cycle mode: admitted after evicting the oldest device.
	cfg.Mode = "cycle"
	require.Equal(t, http.StatusOK, run(cfg, "alice").Code)
	require.Equal(t, "alice", cycled)

	// Limiting disabled.
	require.Equal(t, http.StatusOK, run(config.ConnectionLimitConfig{}, "alice").Code)
}
