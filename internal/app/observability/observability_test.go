package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/packages/123/session/questions")
	want := "/api/v1/packages/{id}/session/questions"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestExtractPackageID(t *testing.T) {
	if id := extractPackageID("/api/v1/packages/456/session/submit"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractPackageID("/api/v1/results/1"); id != 0 {
		t.Fatalf("expected 0 for non-package path, got %d", id)
	}
}

func TestMetricsHandlerReportsActiveSessions(t *testing.T) {
	c := NewCollector(nil, func() int { return 3 })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	c.MetricsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "cbtexam_active_sessions 3") {
		t.Fatalf("missing active sessions gauge:\n%s", w.Body.String())
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	c := NewCollector(nil, nil)
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/packages/9", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	c.MetricsHandler(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(),
		`cbtexam_http_requests_total{method="GET",path="/api/v1/packages/{id}",status="418"} 1`) {
		t.Fatalf("request counter missing:\n%s", w.Body.String())
	}
}
