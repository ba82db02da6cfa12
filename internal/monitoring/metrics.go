// Package monitoring holds the Prometheus collectors for the service.
//
// All collectors live on a private registry owned by Metrics rather than on
// prometheus.DefaultRegisterer, so tests can build as many independent
// instances as they like without "duplicate metrics collector registration"
// panics. Handler exposes exactly that registry.
//
// Every Record* method is safe to call on a nil *Metrics, which lets
// components take metrics as an optional dependency.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the GitHub and friends counters.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpActive      prometheus.Gauge
	githubRequests  *prometheus.CounterVec
	friendsResolved *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		httpActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_active_requests",
				Help: "Number of requests currently being served",
			},
		),
		githubRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "github_requests_total",
				Help: "Total number of calls made to the GitHub API",
			},
			[]string{"endpoint", "outcome"},
		),
		friendsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "friends_resolved_total",
				Help: "Mutual friends processed by the friends workflow",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.httpActive,
		m.githubRequests,
		m.friendsResolved,
	)
	return m
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestStarted bumps the in-flight gauge. Pair it with RequestFinished.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.httpActive.Inc()
}

// RequestFinished records a completed request. route is the router pattern
// (e.g. "/api/users/{username}"), never the raw path, to keep label
// cardinality bounded.
func (m *Metrics) RequestFinished(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpActive.Dec()
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordGitHubRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.githubRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) RecordFriendResolved(outcome string) {
	if m == nil {
		return
	}
	m.friendsResolved.WithLabelValues(outcome).Inc()
}
