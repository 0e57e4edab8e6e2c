package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's Prometheus collectors around one private
// registry, keeping the exposition independent of anything else the process
// registers globally.
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted  *prometheus.CounterVec
	claims         *prometheus.CounterVec
	completions    *prometheus.CounterVec
	heartbeats     *prometheus.CounterVec
	txnRetries     prometheus.Counter
	requestSeconds *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pactum_jobs_submitted_total",
				Help: "Jobs accepted, by job type",
			},
			[]string{"job_type"},
		),
		claims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pactum_claims_total",
				Help: "Claim requests, by job type and result (granted | empty)",
			},
			[]string{"job_type", "result"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pactum_completions_total",
				Help: "Contract completions, by submitted result kind",
			},
			[]string{"kind"},
		),
		heartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pactum_heartbeats_total",
				Help: "Heartbeats processed, by returned instruction",
			},
			[]string{"instruction"},
		),
		txnRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pactum_txn_retries_total",
				Help: "Transaction commit conflicts, each of which triggers a bounded retry",
			},
		),
		requestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pactum_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		m.jobsSubmitted,
		m.claims,
		m.completions,
		m.heartbeats,
		m.txnRetries,
		m.requestSeconds,
	)

	return m
}

// JobSubmitted records one accepted job.
func (m *Metrics) JobSubmitted(jobType string) {
	m.jobsSubmitted.WithLabelValues(jobType).Inc()
}

// ClaimGranted records a claim that returned a contract.
func (m *Metrics) ClaimGranted(jobType string) {
	m.claims.WithLabelValues(jobType, "granted").Inc()
}

// ClaimEmpty records a claim that found no eligible contract.
func (m *Metrics) ClaimEmpty(jobType string) {
	m.claims.WithLabelValues(jobType, "empty").Inc()
}

// Completion records a contract completion by result kind.
func (m *Metrics) Completion(kind string) {
	m.completions.WithLabelValues(kind).Inc()
}

// Heartbeat records a processed heartbeat and the instruction it returned.
func (m *Metrics) Heartbeat(instruction string) {
	m.heartbeats.WithLabelValues(instruction).Inc()
}

// TxnRetry records one conflict-driven transaction retry.
func (m *Metrics) TxnRetry() {
	m.txnRetries.Inc()
}

// ObserveRequest records one HTTP request's latency.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	m.requestSeconds.WithLabelValues(method, path, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler returns the exposition endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
