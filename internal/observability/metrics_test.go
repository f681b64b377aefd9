package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	if !strings.Contains(body, "arkivo_http_requests_total") {
		t.Fatalf("request counter missing from scrape")
	}
	if !strings.Contains(body, `code="418"`) {
		t.Fatalf("status label missing from scrape:\n%s", body)
	}
}

func TestObserveDecision(t *testing.T) {
	m := NewMetrics()
	m.ObserveDecision("docs:Read", "Allow", 2*time.Millisecond)
	m.ObserveDecision("docs:Delete", "Deny", time.Millisecond)

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	if !strings.Contains(body, `arkivo_authz_decisions_total{action="docs:Delete",effect="Deny"} 1`) {
		t.Fatalf("decision counter missing:\n%s", body)
	}
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("docs:Read", "Allow", 0)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if h := m.Middleware(next); h == nil {
		t.Fatalf("nil metrics middleware should pass through")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil metrics handler status = %d", rec.Code)
	}
}
