package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "sitecat"
)

// Metrics holds all Prometheus metrics for the plugin
type Metrics struct {
	// Response filtering metrics
	ResponsesTotal *prometheus.CounterVec
	SkippedTotal   *prometheus.CounterVec
	InjectedBytes  prometheus.Histogram

	// Deferred call metrics
	DeferredReplayed    prometheus.Counter
	DeferredQueueLength prometheus.Histogram
	TrackerErrors       *prometheus.CounterVec

	// Session store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	// System metrics
	PluginInfo *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	m := &Metrics{
		// Response filtering metrics
		ResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Total number of responses seen by the tracking filter",
			},
			[]string{"result"},
		),
		SkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_total",
				Help:      "Responses left untouched, by reason",
			},
			[]string{"reason"},
		),
		InjectedBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "injected_bytes",
				Help:      "Size of the tracking blocks inserted into responses",
				Buckets:   []float64{256, 512, 1024, 2048, 4096, 8192},
			},
		),

		// Deferred call metrics
		DeferredReplayed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deferred_replayed_total",
				Help:      "Total number of deferred calls replayed onto a new tracker",
			},
		),
		DeferredQueueLength: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deferred_queue_length",
				Help:      "Number of deferred calls popped at request start",
				Buckets:   []float64{0, 1, 2, 5, 10, 25},
			},
		),
		TrackerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracker_errors_total",
				Help:      "Total number of tracker setup errors",
			},
			[]string{"stage"},
		),

		// Session store metrics
		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of session store operations",
			},
			[]string{"backend", "operation", "status"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of session store operations",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"backend", "operation"},
		),

		// System metrics
		PluginInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plugin_info",
				Help:      "Information about the running plugin",
			},
			[]string{"version", "store"},
		),
	}

	return m
}
