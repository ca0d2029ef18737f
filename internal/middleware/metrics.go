package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kgraph-io/plater-automat/internal/metrics"
)

// MetricsMiddleware records request counts/durations against m, labeling the
// path with the matched mux route template so dynamically-synthesized PLATER
// routes (hop/node endpoints) don't blow up cardinality per curie.
func MetricsMiddleware(serviceName string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.IncrementInFlight()
			defer m.DecrementInFlight()

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}

			m.RecordHTTPRequest(serviceName, r.Method, path, strconv.Itoa(rw.status), time.Since(start))
		})
	}
}
