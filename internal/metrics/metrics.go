// Package metrics exposes scoring counters on a Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cashmon"

// Metrics implements scoring.Recorder and serves /metrics.
type Metrics struct {
	registry *prometheus.Registry
	scored   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	batch    prometheus.Histogram
	synced   prometheus.Counter
	requests *prometheus.HistogramVec
	limited  prometheus.Counter
	flagged  *prometheus.CounterVec
}

// New registers the scoring collectors plus the Go and process collectors
// on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		scored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_scored_total",
			Help:      "Transactions scored, by outcome.",
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_errors_total",
			Help:      "Scoring failures, by kind.",
		}, []string{"kind"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a scoring batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		synced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_synced_total",
			Help:      "Anomalies appended to the alerts sheet.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route and status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		limited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
		flagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_suspicious_requests_total",
			Help:      "Requests matching a suspicious pattern, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.scored, m.errors, m.batch, m.synced,
		m.requests, m.limited, m.flagged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Scored(anomaly bool) {
	outcome := "normal"
	if anomaly {
		outcome = "anomaly"
	}
	m.scored.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Failed(kind string) {
	m.errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) BatchDone(_ int, elapsed time.Duration) {
	m.batch.Observe(elapsed.Seconds())
}

// AlertsSynced counts alerts written by the sync processor.
func (m *Metrics) AlertsSynced(n int) {
	m.synced.Add(float64(n))
}

// HTTPRequest observes one served request. Status is reduced to its class
// ("2xx", "4xx") to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, statusClass(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimited() {
	m.limited.Inc()
}

func (m *Metrics) Suspicious(reason string) {
	m.flagged.WithLabelValues(reason).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
