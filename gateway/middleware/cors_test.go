package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.org/"}, AllowCredentials: true})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/0xabc/view", nil)
	req.Header.Set("Origin", "https://app.example.org")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.org" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if res.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials header")
	}

	req.Header.Set("Origin", "https://evil.example.com")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin must not be echoed, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS(CORSConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodOptions, "/v1/accounts/0xabc/snapshots", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent || called {
		t.Fatalf("expected preflight short circuit, got %d (called=%v)", res.Code, called)
	}
	if res.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("wildcard origin expected")
	}
}
