// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors for policy evaluation and reloads. All
// collectors live on a private registry so tests can run side by side.
type Metrics struct {
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	nanResults         *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	policiesLoaded     prometheus.Gauge
	reloads            *prometheus.CounterVec
	devices            prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyd",
			Name:      "evaluations_total",
			Help:      "Policy evaluations performed, per policy.",
		}, []string{"policy"}),
		nanResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyd",
			Name:      "evaluation_nan_results_total",
			Help:      "Evaluations whose result degraded to NaN, per policy.",
		}, []string{"policy"}),
		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "policyd",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent computing a single policy formula.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		}, []string{"policy"}),
		policiesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "policyd",
			Name:      "policies_loaded",
			Help:      "Number of policies currently loaded.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyd",
			Name:      "policy_reloads_total",
			Help:      "Policy file reloads, by outcome.",
		}, []string{"outcome"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "policyd",
			Name:      "devices",
			Help:      "Number of registered devices.",
		}),
	}

	m.registry.MustRegister(
		m.evaluations,
		m.nanResults,
		m.evaluationDuration,
		m.policiesLoaded,
		m.reloads,
		m.devices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveEvaluation records one policy evaluation and its duration.
func (m *Metrics) ObserveEvaluation(policy string, elapsed time.Duration) {
	m.evaluations.WithLabelValues(policy).Inc()
	m.evaluationDuration.WithLabelValues(policy).Observe(elapsed.Seconds())
}

// ObserveNaNResult records an evaluation that degraded to NaN.
func (m *Metrics) ObserveNaNResult(policy string) {
	m.nanResults.WithLabelValues(policy).Inc()
}

// SetPoliciesLoaded records the size of the active policy set.
func (m *Metrics) SetPoliciesLoaded(n int) {
	m.policiesLoaded.Set(float64(n))
}

// ObserveReload records a reload attempt.
func (m *Metrics) ObserveReload(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.reloads.WithLabelValues(outcome).Inc()
}

// SetDevices records the size of the device registry.
func (m *Metrics) SetDevices(n int) {
	m.devices.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
