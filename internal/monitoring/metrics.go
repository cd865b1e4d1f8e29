package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline's Prometheus collectors. One instance
// is created in main and shared; tests create their own to avoid
// duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	GateOutcomes    *prometheus.CounterVec
	Escalations     prometheus.Counter
	AdapterFailures *prometheus.CounterVec
	AdapterLatency  *prometheus.HistogramVec
	ExportJobs      *prometheus.CounterVec
	ExportQueueLen  prometheus.Gauge
	Transitions     *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,
		GateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_gate_outcomes_total",
			Help: "Confidence gate decisions by outcome.",
		}, []string{"outcome"}),
		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipforge_cloud_escalations_total",
			Help: "Clips escalated to cloud arbitration.",
		}),
		AdapterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_adapter_failures_total",
			Help: "Model adapter failures by adapter name.",
		}, []string{"adapter"}),
		AdapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipforge_adapter_latency_seconds",
			Help:    "Model adapter call latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"adapter"}),
		ExportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_export_jobs_total",
			Help: "Export job outcomes.",
		}, []string{"result"}),
		ExportQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clipforge_export_queue_depth",
			Help: "Export jobs waiting for a worker slot.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_lifecycle_transitions_total",
			Help: "Video lifecycle transitions by target state.",
		}, []string{"target"}),
	}

	reg.MustRegister(
		m.GateOutcomes,
		m.Escalations,
		m.AdapterFailures,
		m.AdapterLatency,
		m.ExportJobs,
		m.ExportQueueLen,
		m.Transitions,
	)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
