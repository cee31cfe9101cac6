package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/openblog/backend/internal/logger"
)

// SlowRequestThreshold is the duration above which Timing logs a warning.
const SlowRequestThreshold = 500 * time.Millisecond

// Timing adds a Server-Timing header and logs slow requests.
// The header is set before the first byte is written so it reaches the client.
func Timing(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &timingResponseWriter{
				responseWriter: newResponseWriter(w),
				start:          start,
			}

			next.ServeHTTP(wrapped, r)

			// Upgraded connections live as long as the client stays.
			duration := time.Since(start)
			if duration > SlowRequestThreshold && wrapped.statusCode != http.StatusSwitchingProtocols {
				log.Warn(r.Context(), "slow request", map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      wrapped.statusCode,
					"duration_ms": duration.Milliseconds(),
				})
			}
		})
	}
}

type timingResponseWriter struct {
	*responseWriter
	start time.Time
}

func (w *timingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.Header().Set("Server-Timing", formatServerTiming(time.Since(w.start)))
	}
	w.responseWriter.WriteHeader(code)
}

func (w *timingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.responseWriter.Write(b)
}

func formatServerTiming(d time.Duration) string {
	ms := float64(d.Nanoseconds()) / 1e6
	return "total;dur=" + strconv.FormatFloat(ms, 'f', 2, 64)
}
