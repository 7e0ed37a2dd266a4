// Package metrics exposes Prometheus instruments for the review pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the process's collectors. Tests build their own with New.
type Registry struct {
	reg *prometheus.Registry

	ReasoningRequests   *prometheus.CounterVec
	ReasoningLatency    *prometheus.HistogramVec
	NormalizerFallbacks *prometheus.CounterVec
	Corrections         *prometheus.CounterVec
	StaleResults        *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		ReasoningRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundwater",
			Name:      "reasoning_requests_total",
			Help:      "Reasoning service calls by task and outcome.",
		}, []string{"task", "outcome"}),
		ReasoningLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groundwater",
			Name:      "reasoning_request_seconds",
			Help:      "Reasoning service round-trip latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"task"}),
		NormalizerFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundwater",
			Name:      "normalizer_fallbacks_total",
			Help:      "Replies without a usable structured payload, by schema.",
		}, []string{"schema"}),
		Corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundwater",
			Name:      "corrections_total",
			Help:      "Correction decisions by result (applied, skipped, discarded).",
		}, []string{"result"}),
		StaleResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundwater",
			Name:      "stale_results_total",
			Help:      "Pipeline results dropped because a newer call was started.",
		}, []string{"task"}),
	}
	r.reg.MustRegister(
		r.ReasoningRequests,
		r.ReasoningLatency,
		r.NormalizerFallbacks,
		r.Corrections,
		r.StaleResults,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// The helpers below are nil-safe so components can run without metrics.

// ObserveReasoning records one reasoning call.
func (r *Registry) ObserveReasoning(task, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.ReasoningRequests.WithLabelValues(task, outcome).Inc()
	r.ReasoningLatency.WithLabelValues(task).Observe(d.Seconds())
}

// Fallback records a reply that fell back to the deterministic payload.
func (r *Registry) Fallback(schema string) {
	if r == nil {
		return
	}
	r.NormalizerFallbacks.WithLabelValues(schema).Inc()
}

// Correction adds n correction decisions with the given result.
func (r *Registry) Correction(result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Corrections.WithLabelValues(result).Add(float64(n))
}

// Stale records a dropped pipeline result.
func (r *Registry) Stale(task string) {
	if r == nil {
		return
	}
	r.StaleResults.WithLabelValues(task).Inc()
}
