package verifier

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/verifier/metrics"
)

// Metrics holds request-level metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	StageDuration   *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("verify")

	return &Metrics{
		RequestsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Verify requests by terminal state and error kind",
		}, []string{"state", "error_kind"}),

		RequestDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "End-to-end duration of verify requests",
			Buckets: metrics.InclusionBuckets,
		}),

		StageDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stage_duration_seconds",
			Help:    "Duration of the nonce and fee stages",
			Buckets: metrics.LatencyBuckets,
		}, []string{"stage"}),

		InFlight: reg.NewGauge(prometheus.GaugeOpts{
			Name: "requests_in_flight",
			Help: "Verify requests currently being processed",
		}),
	}
}
