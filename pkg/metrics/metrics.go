// Package metrics declares the Prometheus collectors of the service. They
// are registered on the default registry through promauto and exposed by the
// HTTP server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts pipeline runs by outcome (ok, input_error,
	// invariant_error, error).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedsel_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	// StageDuration measures each pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seedsel_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60, 300},
		},
		[]string{"stage"},
	)

	// PropagationIterations counts propagation iterations by mode.
	PropagationIterations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedsel_propagation_iterations_total",
			Help: "Total number of influence propagation iterations",
		},
		[]string{"mode"},
	)

	// LastRun reports sizes from the most recent run.
	LastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seedsel_last_run",
			Help: "Sizes observed in the most recent run (nodes, edges, components, levels, candidates, seeds)",
		},
		[]string{"quantity"},
	)

	// HTTPRequestsTotal counts API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedsel_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)
)
