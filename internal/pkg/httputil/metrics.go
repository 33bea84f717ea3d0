package httputil

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/resilio/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MetricsMiddleware records request latency by route pattern and the number
// of requests in flight. Upgraded websocket sessions are counted for their
// whole lifetime and reported with status 101.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method,
			routeLabel(r),
			strconv.Itoa(statusLabel(ww.Status())),
		).Observe(time.Since(start).Seconds())
	})
}

// routeLabel uses the matched pattern, never the raw path, to bound label cardinality.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unknown"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unknown"
}

func statusLabel(status int) int {
	// Only a hijacked websocket leaves the wrapper without a status.
	if status == 0 {
		return http.StatusSwitchingProtocols
	}
	return status
}
