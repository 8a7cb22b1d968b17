package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Plugin invocation latency buckets in milliseconds. Scripted scans are
	// slower than plain handlers, so the upper buckets reach the 30s
	// invocation timeout.
	latencyBuckets = []float64{
		1, 5, 10, // trivial checks
		25, 50, 100, // typical regex/body scans
		250, 500, 1000, // heavy parsing or fetch round trips
		5000, 15000, 30000, // near-timeout outliers
	}

	TasksProcessedTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_tasks_processed_total",
			Help: "Total number of scan tasks consumed from the task queue",
		},
		[]string{"kind"},
	)

	FindingsEmittedTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_findings_emitted_total",
			Help: "Total number of findings emitted by plugins into the finding queue",
		},
		[]string{"plugin_id"},
	)

	FindingsPersistedTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_findings_persisted_total",
			Help: "Total number of genuinely new findings inserted into the store",
		},
	)

	DedupHitsTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_dedup_hits_total",
			Help: "Total number of findings discarded as duplicates of a known signature",
		},
	)

	PluginErrorsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_plugin_errors_total",
			Help: "Total number of failed plugin invocations",
		},
		[]string{"plugin_id", "hook"},
	)

	PluginInvocationLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_plugin_invocation_ms",
			Help:    "Plugin invocation latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"plugin_id", "hook"},
	)

	QueueDepth = promauto.With(registerer).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_queue_depth",
			Help: "Number of items buffered in a pipeline queue",
		},
		[]string{"queue"},
	)

	QueueDroppedTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_queue_dropped_total",
			Help: "Total number of items evicted by the drop-oldest overflow policy",
		},
		[]string{"queue"},
	)

	CorrelationCacheEntries = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_correlation_cache_entries",
			Help: "Request contexts waiting for their matching response",
		},
	)

	DedupCacheEntries = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_dedup_cache_entries",
			Help: "Known finding signatures held in memory",
		},
	)

	PluginsLoaded = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_plugins_loaded",
			Help: "Number of live plugin runtimes in the registry",
		},
	)
)

type MetricsConfig struct {
	EnableInvocationLatency bool // Per-plugin latency histograms (plugin_id x hook cardinality)
	EnableQueueMetrics      bool // Queue depth gauges and drop counters
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		EnableInvocationLatency: true,
		EnableQueueMetrics:      true,
	}
}

var Config MetricsConfig

func Initialize(cfg MetricsConfig) {
	Config = cfg
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}
