// Package metrics exposes Prometheus collectors for conversation runs.
package metrics

import (
	"net/http"

	"github.com/petasbytes/go-openrouter/chat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements chat.Observer over a private registry.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal     *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	toolLatencyMs  *prometheus.HistogramVec
	turnLatencyMs  *prometheus.HistogramVec
	runsTotal      *prometheus.CounterVec
}

var _ chat.Observer = (*Metrics)(nil)

func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrouter_turns_total",
			Help: "Completed round-trips by model and finish reason.",
		}, []string{"model", "finish_reason"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrouter_tool_calls_total",
			Help: "Tool calls dispatched by tool and outcome.",
		}, []string{"tool", "status"}),
		toolLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openrouter_tool_latency_ms",
			Help:    "Tool handler latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"tool"}),
		turnLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openrouter_turn_latency_ms",
			Help:    "Round-trip latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		}, []string{"model"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrouter_runs_total",
			Help: "Finished conversations by outcome.",
		}, []string{"outcome"}),
	}
	r.MustRegister(m.turnsTotal, m.toolCallsTotal, m.toolLatencyMs, m.turnLatencyMs, m.runsTotal)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TurnCompleted(info chat.TurnInfo) {
	reason := info.FinishReason
	if reason == "" {
		reason = "none"
	}
	m.turnsTotal.WithLabelValues(info.Model, reason).Inc()
	m.turnLatencyMs.WithLabelValues(info.Model).Observe(float64(info.Duration.Milliseconds()))
}

// ToolCompleted counts a dispatched call. Names the registry rejected are
// model-supplied, so they share the "unknown" label.
func (m *Metrics) ToolCompleted(info chat.ToolInfo) {
	name := info.Name
	if info.Status == chat.ToolStatusUnknown {
		name = "unknown"
	}
	m.toolCallsTotal.WithLabelValues(name, info.Status).Inc()
	if info.Status == chat.ToolStatusOK || info.Status == chat.ToolStatusFailed {
		m.toolLatencyMs.WithLabelValues(info.Name).Observe(float64(info.Duration.Milliseconds()))
	}
}

func (m *Metrics) RunCompleted(info chat.RunInfo) {
	m.runsTotal.WithLabelValues(info.Outcome).Inc()
}
