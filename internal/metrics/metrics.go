// Package metrics exposes Prometheus instrumentation for the frontier engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the service.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	HistoryLookups   *prometheus.CounterVec
	HistoryFallbacks *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec

	SamplerDuration  prometheus.Histogram
	SamplesGenerated prometheus.Counter
	OptimizerRuns    *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	JobRuns *prometheus.CounterVec
}

// NewRegistry creates a registry with all metrics registered on a private
// prometheus.Registry, plus the Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		HistoryLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwand_history_lookups_total",
				Help: "Historical series lookups by cache layer and outcome",
			},
			[]string{"layer", "outcome"},
		),

		HistoryFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwand_history_fallbacks_total",
				Help: "Series served from a fallback source after upstream failure",
			},
			[]string{"source"},
		),

		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwand_upstream_requests_total",
				Help: "Requests to external market data APIs",
			},
			[]string{"client", "outcome"},
		),

		SamplerDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantwand_sampler_duration_seconds",
				Help:    "Wall time of one Monte Carlo sampling run",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		SamplesGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantwand_samples_generated_total",
				Help: "Random portfolios generated",
			},
		),

		OptimizerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwand_optimizer_runs_total",
				Help: "Optimizer facade invocations by kind and result",
			},
			[]string{"kind", "result"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwand_http_requests_total",
				Help: "HTTP requests by method and status code",
			},
			[]string{"method", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantwand_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantwand_job_runs_total",
				Help: "Scheduled job executions by job and result",
			},
			[]string{"job", "result"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.HistoryLookups,
		r.HistoryFallbacks,
		r.UpstreamRequests,
		r.SamplerDuration,
		r.SamplesGenerated,
		r.OptimizerRuns,
		r.HTTPRequests,
		r.HTTPDuration,
		r.JobRuns,
	)

	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for Prometheus scraping
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordHistoryLookup records a cache lookup ("memory" or "persistent") as "hit" or "miss"
func (r *Registry) RecordHistoryLookup(layer string, hit bool) {
	if r == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.HistoryLookups.WithLabelValues(layer, outcome).Inc()
}

// RecordHistoryFallback records a series served from "stale" or "synthetic"
func (r *Registry) RecordHistoryFallback(source string) {
	if r == nil {
		return
	}
	r.HistoryFallbacks.WithLabelValues(source).Inc()
}

// RecordUpstream records one external API call
func (r *Registry) RecordUpstream(client string, err error) {
	if r == nil {
		return
	}
	r.UpstreamRequests.WithLabelValues(client, result(err)).Inc()
}

// ObserveSampling records one sampler run
func (r *Registry) ObserveSampling(d time.Duration, samples int) {
	if r == nil {
		return
	}
	r.SamplerDuration.Observe(d.Seconds())
	r.SamplesGenerated.Add(float64(samples))
}

// RecordOptimizerRun records a facade call ("optimize" or "simulate")
func (r *Registry) RecordOptimizerRun(kind string, err error) {
	if r == nil {
		return
	}
	r.OptimizerRuns.WithLabelValues(kind, result(err)).Inc()
}

// ObserveHTTP records one served request
func (r *Registry) ObserveHTTP(method, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(method, status).Inc()
	r.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordJobRun records one scheduled job execution
func (r *Registry) RecordJobRun(job string, err error) {
	if r == nil {
		return
	}
	r.JobRuns.WithLabelValues(job, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
