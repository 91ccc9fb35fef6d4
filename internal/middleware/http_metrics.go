package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are served without path parameters.
var staticRoutes = map[string]bool{
	"/":                   true,
	"/health":             true,
	"/ready":              true,
	"/metrics":            true,
	"/api/v1/founders":    true,
	"/api/v1/providers":   true,
	"/api/v1/matrix":      true,
	"/api/v1/insights":    true,
	"/api/v1/runs":        true,
	"/api/v1/runs/latest": true,
}

// normalizePath maps paths carrying profile ids to their route pattern so metric
// labels and span names stay low-cardinality: /api/v1/founders/F001/matches
// becomes /api/v1/founders/{id}/matches. Unknown paths are returned unchanged.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return path
	}
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 3 && parts[1] != "" && parts[2] == "matches" &&
		(parts[0] == "founders" || parts[0] == "providers"):
		return "/api/v1/" + parts[0] + "/{id}/matches"
	case len(parts) == 2 && parts[0] == "labels" && parts[1] != "":
		return "/api/v1/labels/{id}"
	}
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap returns the wrapped writer.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// HTTPMetrics records request duration, sizes and counts per method, route and status.
// /health and /ready are not recorded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
