package batcher

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/verifier/metrics"
)

// Metrics holds submission client metrics.
type Metrics struct {
	SubmissionsTotal  *prometheus.CounterVec
	InclusionWait     prometheus.Histogram
	ConnectionsActive prometheus.Gauge
	MessagesTotal     *prometheus.CounterVec
	ProofSizeBytes    prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("batcher")

	return &Metrics{
		SubmissionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Submissions by terminal result",
		}, []string{"result"}),

		InclusionWait: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "inclusion_wait_seconds",
			Help:    "Time from sending a submission to its terminal result",
			Buckets: metrics.InclusionBuckets,
		}),

		ConnectionsActive: reg.NewGauge(prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Open connections to the batcher",
		}),

		MessagesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Frames exchanged with the batcher by type and direction",
		}, []string{"type", "direction"}),

		ProofSizeBytes: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "proof_size_bytes",
			Help:    "Size of submitted proofs",
			Buckets: metrics.SizeBuckets,
		}),
	}
}
