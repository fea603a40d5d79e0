package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "dashboard-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "lendboard-ingest",
		Audience:   "dashboardd",
	}, nil)
}

func TestAuthenticatorAcceptsScopedToken(t *testing.T) {
	var subject string
	var scopes []string
	handler := newTestAuthenticator().Middleware("snapshots:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
		scopes = Scopes(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	token := signToken(t, jwt.MapClaims{
		"iss":   "lendboard-ingest",
		"aud":   []string{"dashboardd"},
		"sub":   "fetcher-1",
		"scope": "snapshots:write views:read",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/0xabc/snapshots", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected accepted, got %d: %s", res.Code, res.Body.String())
	}
	if subject != "fetcher-1" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if len(scopes) != 2 {
		t.Fatalf("unexpected scopes %v", scopes)
	}
}

func TestAuthenticatorRejections(t *testing.T) {
	handler := newTestAuthenticator().Middleware("snapshots:write")(okHandler())
	valid := jwt.MapClaims{
		"iss":   "lendboard-ingest",
		"aud":   "dashboardd",
		"scope": "snapshots:write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	with := func(key string, value interface{}) jwt.MapClaims {
		out := jwt.MapClaims{}
		for k, v := range valid {
			out[k] = v
		}
		out[key] = value
		return out
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, with("exp", time.Now().Add(-time.Hour).Unix())), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, with("iss", "someone-else")), http.StatusUnauthorized},
		{"wrong audience", "Bearer " + signToken(t, with("aud", "gateway")), http.StatusUnauthorized},
		{"missing scope", "Bearer " + signToken(t, with("scope", "views:read")), http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/accounts/0xabc/snapshots", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, res.Code)
		}
	}
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: false}, nil)
	res := httptest.NewRecorder()
	auth.Middleware("snapshots:write")(okHandler()).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass through, got %d", res.Code)
	}
}

func TestAuthenticatorOptionalPaths(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		OptionalPaths:  []string{"/v1/chains/"},
		AllowAnonymous: true,
	}, nil)
	handler := auth.Middleware()(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/chains/1/markets", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected anonymous access to optional path, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/accounts/0xabc/view", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected auth on other paths, got %d", res.Code)
	}
}
