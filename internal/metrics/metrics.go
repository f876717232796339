// Package metrics holds the Prometheus collectors shared by the registry,
// the authenticator and the registry daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for authledger components. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Registration attempts by outcome
	Registrations *prometheus.CounterVec

	// Authentication decisions by result
	Decisions *prometheus.CounterVec

	// Store RPCs served by method and gRPC code
	StoreRPCs *prometheus.CounterVec

	// Store RPC latency by method
	StoreRPCLatency *prometheus.HistogramVec
}

// New creates a Metrics instance registered on its own registry, so several
// instances can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authledger_registrations_total",
			Help: "Total identity registration attempts by outcome",
		}, []string{"outcome"}), // outcome: "registered", "already_registered", "invalid_key", "storage_error"

		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authledger_auth_decisions_total",
			Help: "Total authentication decisions by result",
		}, []string{"result"}),

		StoreRPCs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authledger_store_rpcs_total",
			Help: "Total store RPCs served by method and status code",
		}, []string{"method", "code"}),

		StoreRPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authledger_store_rpc_duration_seconds",
			Help:    "Duration of store RPCs by method",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"method"}),
	}
}

// IncrementRegistration records a registration outcome.
func (m *Metrics) IncrementRegistration(outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(outcome).Inc()
	}
}

// IncrementDecision records an authentication decision.
func (m *Metrics) IncrementDecision(result string) {
	if m != nil {
		m.Decisions.WithLabelValues(result).Inc()
	}
}

// ObserveStoreRPC records one served RPC.
func (m *Metrics) ObserveStoreRPC(method, code string, d time.Duration) {
	if m != nil {
		m.StoreRPCs.WithLabelValues(method, code).Inc()
		m.StoreRPCLatency.WithLabelValues(method).Observe(d.Seconds())
	}
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current values to path in the text exposition
// format, for node_exporter's textfile collector. Short-lived commands use it
// in place of a scrape endpoint.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
