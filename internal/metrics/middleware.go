// ABOUTME: Chi middleware recording request counts and latency per route
// ABOUTME: Uses the chi route pattern as the path label to keep cardinality bounded

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware records Prometheus metrics for every request passing through.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		path := routePattern(r)
		method := r.Method
		status := strconv.Itoa(ww.Status())

		HTTPRequests.WithLabelValues(path, method, status).Inc()
		RequestDuration.WithLabelValues(path, method).Observe(duration)
	})
}

// routePattern returns the chi route pattern (e.g. /api/messages/{id}/cancel)
// so path parameters don't explode label cardinality. Falls back to the raw
// path for requests that never matched a route.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
