// Package metric exposes prometheus metrics for the gateway.
package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nntpgate"

// Outcome label values for PostsTotal and ReadsTotal.
const (
	OutcomePosted   = "posted"
	OutcomeFailed   = "failed"
	OutcomeRead     = "ok"
	OutcomeNotFound = "not_found"
)

// Metrics holds every collector the gateway updates.
type Metrics struct {
	PostsTotal    *prometheus.CounterVec
	PostDuration  *prometheus.HistogramVec
	ReadsTotal    *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	JournalErrors prometheus.Counter
	registry      *prometheus.Registry
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		PostsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "posts",
				Name:      "total",
				Help:      "Articles relayed to the NNTP server by outcome and failure kind",
			},
			[]string{"outcome", "kind"},
		),

		PostDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "posts",
				Name:      "duration_seconds",
				Help:      "Time from dial to final status for one post",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		ReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reads",
				Name:      "total",
				Help:      "Index, article and attachment fetches by operation and outcome",
			},
			[]string{"op", "outcome"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests served by method and status code",
			},
			[]string{"method", "status"},
		),

		JournalErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "journal",
				Name:      "errors_total",
				Help:      "Post journal writes that failed",
			},
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.PostsTotal,
		m.PostDuration,
		m.ReadsTotal,
		m.HTTPRequests,
		m.JournalErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePost records one post attempt. kind is empty for successes.
func (m *Metrics) ObservePost(outcome, kind string, d time.Duration) {
	if kind == "" {
		kind = "none"
	}
	m.PostsTotal.WithLabelValues(outcome, kind).Inc()
	m.PostDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveRead counts one read operation ("index", "article", "attachment").
func (m *Metrics) ObserveRead(op, outcome string) {
	m.ReadsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveRequest counts one served HTTP request.
func (m *Metrics) ObserveRequest(method string, status int) {
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
