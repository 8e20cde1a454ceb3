package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/metrics"
)

// Metrics counts requests per route and status, times them, and tracks how
// many are in flight. Unknown paths collapse into the "other" route label.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := normalizePath(r.URL.Path)
			timer := prometheus.NewTimer(m.HTTPRequestDuration.WithLabelValues(r.Method, route))
			m.HTTPRequestsInFlight.Inc()

			rec := newRecorder(w)
			next.ServeHTTP(rec, r)

			m.HTTPRequestsInFlight.Dec()
			timer.ObserveDuration()
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		})
	}
}

// routes are the label values for the path label, longest first so nested
// routes win over their parents.
var routes = []string{
	"/api/v1/analytics/snapshot",
	"/api/v1/cache/invalidate",
	"/api/v1/records/batch",
	"/api/v1/reload",
	"/api/v1/cache/stats",
	"/api/v1/analytics",
	"/api/v1/records",
	"/api/v1/search",
	"/api/v1/stats",
	"/health/ready",
	"/health/live",
}

func normalizePath(path string) string {
	path = strings.TrimSuffix(path, "/")
	for _, route := range routes {
		if path == route || strings.HasPrefix(path, route+"/") {
			return route
		}
	}
	return "other"
}
