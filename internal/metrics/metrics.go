// Package metrics exposes Prometheus collectors for script invocations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"phobos.org.uk/groqbridge/internal/runner"
)

// Metrics reports invocation outcomes, durations and captured line counts.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lines       *prometheus.CounterVec
	inFlight    prometheus.Gauge
	rejected    prometheus.Counter
}

// MustNewMetrics registers the collectors with reg and panics on duplicate
// registration. Tests pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "groqbridge",
				Name:      "invocations_total",
				Help:      "Script invocations by model, status and failure kind.",
			},
			[]string{"model", "status", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "groqbridge",
				Name:      "invocation_duration_seconds",
				Help:      "Wall time from launch to exit of the script.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"model", "status"},
		),
		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "groqbridge",
				Name:      "stream_lines_total",
				Help:      "Lines captured from the script's output streams.",
			},
			[]string{"stream"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "groqbridge",
				Name:      "in_flight",
				Help:      "1 while an invocation is running.",
			},
		),
		rejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "groqbridge",
				Name:      "rejected_total",
				Help:      "Invocations refused because another was in flight or a path was missing.",
			},
		),
	}
	reg.MustRegister(m.invocations, m.duration, m.lines, m.inFlight, m.rejected)
	return m
}

// Started marks an invocation in flight.
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.inFlight.Set(1)
}

// Rejected counts an invocation that never started.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// Finished records a completed invocation and clears the in-flight gauge.
func (m *Metrics) Finished(modelID string, res runner.Result) {
	if m == nil {
		return
	}
	kind := ""
	if res.Failure != nil {
		kind = string(res.Failure.Kind)
	}
	m.invocations.WithLabelValues(modelID, string(res.Status), kind).Inc()
	m.duration.WithLabelValues(modelID, string(res.Status)).Observe(res.DurationSeconds)
	m.lines.WithLabelValues(runner.StreamStdout).Add(float64(res.StdoutLines))
	m.lines.WithLabelValues(runner.StreamStderr).Add(float64(res.StderrLines))
	m.inFlight.Set(0)
}
