package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func authTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	t.Parallel()

	h := authMiddleware("", authTestHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMissingHeader(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", authTestHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestAuthWrongToken(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", authTestHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, "invalid_token") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestAuthValidToken(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", authTestHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// TestAuthEnforcedOnProtectedRoutes verifies the configured API key guards
// the full mux, while health stays open for probes.
func TestAuthEnforcedOnProtectedRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &Config{APIKey: "secret"})

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/documents", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Errorf("authenticated list: status = %d, want 200", w.Code)
	}

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/health", nil)); w.Code != http.StatusOK {
		t.Errorf("health must stay open: status = %d", w.Code)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"well formed", "Bearer tok123", "tok123"},
		{"case insensitive scheme", "bearer tok123", "tok123"},
		{"wrong scheme", "Basic dXNlcg==", ""},
		{"no token", "Bearer", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := bearerToken(r); got != tc.want {
				t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}
