package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	evaluationOutcomes   *prometheus.CounterVec
	batchesInFlightGauge prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classboard_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classboard_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classboard_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		evaluationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classboard_evaluation_outcomes_total",
			Help: "Evaluation items by mode and terminal outcome.",
		}, []string{"mode", "outcome"})

		batchesInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classboard_batches_in_flight",
			Help: "Number of evaluation batches currently running.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			evaluationOutcomes,
			batchesInFlightGauge,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// EvaluationOutcomes exposes the per-item evaluation outcome counter.
func EvaluationOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationOutcomes
}

// BatchesInFlight exposes the running batch gauge.
func BatchesInFlight() prometheus.Gauge {
	RegisterMetrics()
	return batchesInFlightGauge
}
