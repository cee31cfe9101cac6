package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(m *Metrics) string {
	w := httptest.NewRecorder()
	m.Handler()(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()

	m.RecordRequest("GET", "/posts", 200, 100*time.Millisecond)
	m.RecordRequest("GET", "/posts", 200, 150*time.Millisecond)
	m.RecordRequest("GET", "/posts", 403, 5*time.Millisecond)

	body := scrape(m)

	if !strings.Contains(body, `blog_http_requests_total{endpoint="/posts",method="GET"} 3`) {
		t.Errorf("expected request count 3, got:\n%s", body)
	}
	if !strings.Contains(body, "blog_http_request_duration_seconds_bucket") {
		t.Error("expected duration histogram")
	}
	if !strings.Contains(body, `blog_http_errors_total{endpoint="/posts",method="GET",status_class="4xx"} 1`) {
		t.Errorf("expected one 4xx error, got:\n%s", body)
	}
}

func TestMetrics_WSConnections(t *testing.T) {
	m := New()

	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	if body := scrape(m); !strings.Contains(body, "blog_websocket_connections_active 1") {
		t.Errorf("expected blog_websocket_connections_active 1, got:\n%s", body)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IncCounter("auth_logins_total")
	m.IncCounter("auth_logins_total")
	m.AddCounter("refresh_tokens_pruned_total", 7)

	if m.Counter("auth_logins_total") != 2 {
		t.Errorf("expected 2 logins, got %d", m.Counter("auth_logins_total"))
	}
	body := scrape(m)
	if !strings.Contains(body, `blog_counter{name="refresh_tokens_pruned_total"} 7`) {
		t.Errorf("expected pruned counter, got:\n%s", body)
	}
}

func TestMetrics_Uptime(t *testing.T) {
	m := New()
	time.Sleep(10 * time.Millisecond)

	if body := scrape(m); !strings.Contains(body, "blog_uptime_seconds") {
		t.Error("expected blog_uptime_seconds metric")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/post/550e8400-e29b-41d4-a716-446655440000", "/post/{id}"},
		{"/comments/123", "/comments/{id}"},
		{"/posts", "/posts"},
		{"/post/my-first-post", "/post/my-first-post"},
	}

	for _, tt := range tests {
		if got := normalizeEndpoint(tt.input); got != tt.expected {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.Get("/post/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/post/hello-world", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/post/another", nil))

	body := scrape(m)
	if !strings.Contains(body, `blog_http_requests_total{endpoint="/post/{id}",method="GET"} 2`) {
		t.Errorf("expected both requests under the route pattern, got:\n%s", body)
	}
}
