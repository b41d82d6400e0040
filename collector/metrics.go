package collector

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collector's Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ReportsReceived *prometheus.CounterVec
	ReportsStored   *prometheus.CounterVec
	ReportsRejected *prometheus.CounterVec
	StoreDuration   prometheus.Histogram
	IndexRequests   prometheus.Counter
}

// NewMetrics creates the collector metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ReportsReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrace_reports_received_total",
				Help: "Reports received, by source",
			},
			[]string{"source"},
		),
		ReportsStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrace_reports_stored_total",
				Help: "Reports written to the store, by source",
			},
			[]string{"source"},
		),
		ReportsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrace_reports_rejected_total",
				Help: "Reports not stored, by source and reason",
			},
			[]string{"source", "reason"},
		),
		StoreDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "xtrace_store_duration_seconds",
				Help:    "Time to store one report",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		IndexRequests: f.NewCounter(
			prometheus.CounterOpts{
				Name: "xtrace_index_requests_total",
				Help: "Task index reconstructions served",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry to tests and embedders.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }
