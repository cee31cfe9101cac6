package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

const namespace = "blog"

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Request metrics, keyed by "route|method"
	requestCount    map[string]*uint64
	requestDuration map[string]*Histogram
	// keyed by "route|method|class"
	requestErrors map[string]*uint64

	activeWSConnections int64

	gauges   map[string]float64
	counters map[string]*uint64

	startTime time.Time
}

// Histogram tracks value distributions
type Histogram struct {
	mu         sync.Mutex
	count      uint64
	sum        float64
	buckets    []float64
	bucketVals []uint64
}

// NewHistogram creates a histogram with buckets from 5ms to 10s.
func NewHistogram() *Histogram {
	buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	return &Histogram{
		buckets:    buckets,
		bucketVals: make([]uint64, len(buckets)),
	}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.buckets {
		if v <= b {
			h.bucketVals[i]++
		}
	}
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]*uint64),
		requestDuration: make(map[string]*Histogram),
		requestErrors:   make(map[string]*uint64),
		gauges:          make(map[string]float64),
		counters:        make(map[string]*uint64),
		startTime:       time.Now(),
	}
}

func counterIn(m map[string]*uint64, mu *sync.RWMutex, key string) *uint64 {
	mu.RLock()
	c := m[key]
	mu.RUnlock()
	if c != nil {
		return c
	}

	mu.Lock()
	defer mu.Unlock()
	if c = m[key]; c == nil {
		c = new(uint64)
		m[key] = c
	}
	return c
}

// RecordRequest records a request against its route pattern.
func (m *Metrics) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	key := route + "|" + method

	atomic.AddUint64(counterIn(m.requestCount, &m.mu, key), 1)

	m.mu.Lock()
	h := m.requestDuration[key]
	if h == nil {
		h = NewHistogram()
		m.requestDuration[key] = h
	}
	m.mu.Unlock()
	h.Observe(duration.Seconds())

	if statusCode >= 400 {
		errorKey := fmt.Sprintf("%s|%dxx", key, statusCode/100)
		atomic.AddUint64(counterIn(m.requestErrors, &m.mu, errorKey), 1)
	}
}

// normalizeEndpoint collapses UUID and numeric path segments for routes
// the router did not match.
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = "{id}"
		} else if len(part) > 0 && isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IncWSConnections increments live comment feed connections
func (m *Metrics) IncWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, 1)
}

// DecWSConnections decrements live comment feed connections
func (m *Metrics) DecWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, -1)
}

// SetGauge sets a gauge value
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// IncCounter increments a counter
func (m *Metrics) IncCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds delta to a counter
func (m *Metrics) AddCounter(name string, delta uint64) {
	atomic.AddUint64(counterIn(m.counters, &m.mu, name), delta)
}

// Counter returns the current value of a named counter.
func (m *Metrics) Counter(name string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c := m.counters[name]; c != nil {
		return atomic.LoadUint64(c)
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		fmt.Fprintf(&sb, "# HELP %s_uptime_seconds Time since the server started\n", namespace)
		fmt.Fprintf(&sb, "# TYPE %s_uptime_seconds gauge\n", namespace)
		fmt.Fprintf(&sb, "%s_uptime_seconds %f\n\n", namespace, time.Since(m.startTime).Seconds())

		fmt.Fprintf(&sb, "# HELP %s_websocket_connections_active Active live comment feed connections\n", namespace)
		fmt.Fprintf(&sb, "# TYPE %s_websocket_connections_active gauge\n", namespace)
		fmt.Fprintf(&sb, "%s_websocket_connections_active %d\n\n", namespace, atomic.LoadInt64(&m.activeWSConnections))

		m.mu.RLock()
		defer m.mu.RUnlock()

		if len(m.requestCount) > 0 {
			fmt.Fprintf(&sb, "# HELP %s_http_requests_total Total HTTP requests\n", namespace)
			fmt.Fprintf(&sb, "# TYPE %s_http_requests_total counter\n", namespace)
			for _, key := range sortedKeys(m.requestCount) {
				route, method, _ := strings.Cut(key, "|")
				fmt.Fprintf(&sb, "%s_http_requests_total{endpoint=%q,method=%q} %d\n",
					namespace, route, method, atomic.LoadUint64(m.requestCount[key]))
			}
			sb.WriteString("\n")
		}

		if len(m.requestDuration) > 0 {
			fmt.Fprintf(&sb, "# HELP %s_http_request_duration_seconds HTTP request latency\n", namespace)
			fmt.Fprintf(&sb, "# TYPE %s_http_request_duration_seconds histogram\n", namespace)
			for _, key := range sortedKeys(m.requestDuration) {
				route, method, _ := strings.Cut(key, "|")
				h := m.requestDuration[key]
				h.mu.Lock()
				for i, bucket := range h.buckets {
					fmt.Fprintf(&sb, "%s_http_request_duration_seconds_bucket{endpoint=%q,method=%q,le=\"%g\"} %d\n",
						namespace, route, method, bucket, h.bucketVals[i])
				}
				fmt.Fprintf(&sb, "%s_http_request_duration_seconds_bucket{endpoint=%q,method=%q,le=\"+Inf\"} %d\n", namespace, route, method, h.count)
				fmt.Fprintf(&sb, "%s_http_request_duration_seconds_sum{endpoint=%q,method=%q} %f\n", namespace, route, method, h.sum)
				fmt.Fprintf(&sb, "%s_http_request_duration_seconds_count{endpoint=%q,method=%q} %d\n", namespace, route, method, h.count)
				h.mu.Unlock()
			}
			sb.WriteString("\n")
		}

		if len(m.requestErrors) > 0 {
			fmt.Fprintf(&sb, "# HELP %s_http_errors_total Total HTTP errors by status class\n", namespace)
			fmt.Fprintf(&sb, "# TYPE %s_http_errors_total counter\n", namespace)
			for _, key := range sortedKeys(m.requestErrors) {
				parts := strings.Split(key, "|")
				if len(parts) != 3 {
					continue
				}
				fmt.Fprintf(&sb, "%s_http_errors_total{endpoint=%q,method=%q,status_class=%q} %d\n",
					namespace, parts[0], parts[1], parts[2], atomic.LoadUint64(m.requestErrors[key]))
			}
			sb.WriteString("\n")
		}

		if len(m.gauges) > 0 {
			fmt.Fprintf(&sb, "# HELP %s_gauge Custom gauge metrics\n", namespace)
			fmt.Fprintf(&sb, "# TYPE %s_gauge gauge\n", namespace)
			for _, name := range sortedKeys(m.gauges) {
				fmt.Fprintf(&sb, "%s_gauge{name=%q} %f\n", namespace, name, m.gauges[name])
			}
			sb.WriteString("\n")
		}

		if len(m.counters) > 0 {
			fmt.Fprintf(&sb, "# HELP %s_counter Custom counter metrics\n", namespace)
			fmt.Fprintf(&sb, "# TYPE %s_counter counter\n", namespace)
			for _, name := range sortedKeys(m.counters) {
				fmt.Fprintf(&sb, "%s_counter{name=%q} %d\n", namespace, name, atomic.LoadUint64(m.counters[name]))
			}
		}

		w.Write([]byte(sb.String()))
	}
}

// MetricsMiddleware records request counts and latency by chi route pattern.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			if route == "" {
				route = normalizeEndpoint(r.URL.Path)
			}
			m.RecordRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets websocket upgrades pass through; a hijacked request is
// recorded as 101.
func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
