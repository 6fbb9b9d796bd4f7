// Package metrics exposes the pipeline's Prometheus collectors and a
// gopsutil-backed system sampler, using promauto for registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles every metric the pipeline and session layer update.
// It is constructed once at startup and threaded into each stage's
// constructor.
type Collector struct {
	ThroughputEvents prometheus.Counter
	WhalesTotal      prometheus.Counter
	SessionsActive   prometheus.Gauge
	LatencySeconds   prometheus.Histogram

	DropsTotal     *prometheus.CounterVec
	OverloadsTotal *prometheus.CounterVec

	SystemCPUPercent  prometheus.Gauge
	SystemMemoryBytes prometheus.Gauge
}

// NewCollector registers every metric against reg. Production callers
// pass prometheus.DefaultRegisterer; tests pass a fresh
// prometheus.NewRegistry() so repeated construction doesn't panic on
// duplicate registration.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ThroughputEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "odin_throughput_events_total",
			Help: "Total MarketEvents published into the hot ring.",
		}),
		WhalesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "odin_whales_total",
			Help: "Total WhaleEvents emitted by the hot dispatcher.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "odin_sessions_active",
			Help: "Number of currently subscribed client sessions.",
		}),
		LatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "odin_latency_seconds",
			Help:    "Event latency from producer tick to hot dispatcher processing.",
			Buckets: prometheus.ExponentialBuckets(0.0000005, 2, 16),
		}),
		DropsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "odin_drops_total",
			Help: "Counted event drops by pipeline stage.",
		}, []string{"stage"}),
		OverloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "odin_overloads_total",
			Help: "Overload resets by pipeline stage.",
		}, []string{"stage"}),
		SystemCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "odin_system_cpu_percent",
			Help: "Host-wide CPU utilization percentage, sampled once per second.",
		}),
		SystemMemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "odin_system_memory_bytes",
			Help: "Heap bytes allocated by this process (runtime HeapAlloc), sampled once per second.",
		}),
	}
}

// ObserveLatencyTicks folds a nanosecond latency sample into the
// histogram.
func (c *Collector) ObserveLatencyTicks(nanos uint64) {
	c.LatencySeconds.Observe(float64(nanos) / 1e9)
}
