package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservabilityRecordsStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs := NewObservability(ObservabilityConfig{Enabled: true, Registry: registry}, nil)

	handler := obs.Middleware("view")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/accounts/0xabc/view", nil))
	}

	if got := testutil.ToFloat64(obs.requests.WithLabelValues("view", http.MethodGet, "404")); got != 2 {
		t.Fatalf("expected 2 recorded requests, got %v", got)
	}

	res := httptest.NewRecorder()
	obs.MetricsHandler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(res.Body.String(), "lendboard_http_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", res.Body.String())
	}
}

func TestObservabilityDisabled(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{}, nil)
	handler := obs.Middleware("view")(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := testutil.ToFloat64(obs.requests.WithLabelValues("view", http.MethodGet, "200")); got != 0 {
		t.Fatalf("disabled middleware must not record, got %v", got)
	}
}
