package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "verifier"

var registry = newRegistry()

// Common bucket layouts.
var (
	// LatencyBuckets covers fast RPC calls up to a few seconds.
	LatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// InclusionBuckets covers the batch inclusion wait, which can take minutes.
	InclusionBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}
	// SizeBuckets covers proof payload sizes in bytes.
	SizeBuckets = prometheus.ExponentialBuckets(256, 4, 8)
)

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewGoCollector())
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// GetRegistry returns the process-wide registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	return registry
}

// ComponentRegistry creates collectors under a common namespace/subsystem.
type ComponentRegistry struct {
	subsystem string
}

// NewComponentRegistry returns a registry for the given subsystem.
func NewComponentRegistry(subsystem string) *ComponentRegistry {
	return &ComponentRegistry{subsystem: subsystem}
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return register(prometheus.NewCounterVec(opts, labels))
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return register(prometheus.NewGauge(opts))
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return register(prometheus.NewHistogram(opts))
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return register(prometheus.NewHistogramVec(opts, labels))
}

// register adds c to the registry. Components constructed more than once
// (tests, multiple clients) share the collector registered first.
func register[T prometheus.Collector](c T) T {
	if err := registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
