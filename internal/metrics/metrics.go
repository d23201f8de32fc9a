// Package metrics exposes pipeline counters in the Prometheus format. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dbgview"

type Metrics struct {
	registry *prometheus.Registry

	linesIngested    *prometheus.CounterVec // by source description
	linesDispatched  prometheus.Counter
	flushes          *prometheus.CounterVec // by reason
	sourcesActive    prometheus.Gauge
	sourcesRemoved   prometheus.Counter
	dispatchDuration prometheus.Histogram
	hubDropped       prometheus.Counter
}

// New creates the collectors on a private registry, together with the Go runtime and
// process collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		linesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_ingested_total",
			Help:      "Raw fragments pulled from log sources",
		}, []string{"source"}),

		linesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_dispatched_total",
			Help:      "Reassembled lines handed to sinks",
		}),

		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Lines emitted by newline reassembly, by reason",
		}, []string{"reason"}), // reason: newline, autonewline, overflow, terminated

		sourcesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sources_active",
			Help:      "Number of active log sources",
		}),

		sourcesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_removed_total",
			Help:      "Log sources removed after ending, failing or being removed explicitly",
		}),

		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of one merge and dispatch cycle",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		hubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_dropped_lines_total",
			Help:      "Lines dropped for live viewers that could not keep up",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.linesIngested,
		m.linesDispatched,
		m.flushes,
		m.sourcesActive,
		m.sourcesRemoved,
		m.dispatchDuration,
		m.hubDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) LinesIngested(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.linesIngested.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) LinesDispatched(n int) {
	if m == nil {
		return
	}
	m.linesDispatched.Add(float64(n))
}

func (m *Metrics) Flushed(reason string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetSourcesActive(n int) {
	if m == nil {
		return
	}
	m.sourcesActive.Set(float64(n))
}

func (m *Metrics) SourceRemoved() {
	if m == nil {
		return
	}
	m.sourcesRemoved.Inc()
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) HubDropped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.hubDropped.Add(float64(n))
}
