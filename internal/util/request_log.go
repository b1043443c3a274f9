package util

import (
	"net/http"
	"strings"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// RequestObserver receives the outcome of each request, e.g. for metrics.
type RequestObserver func(path string, status int, elapsed time.Duration)

// WithRequestLog emits one structured "http_request" log per request using
// the request-scoped logger, and reports the outcome to observe when set.
func WithRequestLog(service string, trusted *TrustedProxies, observe RequestObserver, next http.Handler) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		if observe != nil {
			observe(r.URL.Path, status, elapsed)
		}
		LoggerFromContext(r.Context()).Info(
			"http_request",
			"service", service,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", ClientIP(r, trusted),
		)
	})
}
