package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/github-explorer/internal/monitoring"
)

// Metrics records request count, latency and in-flight requests.
//
// Requests are labelled by chi's route pattern ("/api/users/{username}"),
// not the raw path, so one label value covers every username. The pattern
// is only complete after routing, i.e. after next.ServeHTTP returns.
func Metrics(m *monitoring.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			m.RequestStarted()
			next.ServeHTTP(wrapped, r)
			m.RequestFinished(r.Method, routePattern(r), wrapped.statusCode, time.Since(start))
		})
	}
}

// routePattern returns the matched chi route, or "unmatched" for 404s and
// requests served outside a chi router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
