// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	UpdatesReceived  prometheus.Counter
	UpdatesMatched   prometheus.Counter
	MintsDetected    prometheus.Counter
	DispatchDropped  prometheus.Counter
	DispatchQueueLen prometheus.Gauge

	// Enrichment metrics
	EnrichmentsStarted   prometheus.Counter
	EnrichmentsSucceeded prometheus.Counter
	EnrichmentsExhausted prometheus.Counter
	FetchErrors          *prometheus.CounterVec
	ClassificationErrors prometheus.Counter
	EnrichmentDuration   prometheus.Histogram
	MetadataFetchLatency *prometheus.HistogramVec

	// Cache metrics
	CacheEntries  *prometheus.GaugeVec
	PendingCount  prometheus.Gauge
	SweepRemovals prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mintwatch"
	}

	return &Metrics{
		UpdatesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "updates_received_total",
			Help:      "Total number of raw transaction updates received",
		}),
		UpdatesMatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "updates_matched_total",
			Help:      "Total number of updates matching the create instruction filter",
		}),
		MintsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "mints_detected_total",
			Help:      "Total number of mint creation events emitted",
		}),
		DispatchDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "dispatch_dropped_total",
			Help:      "Total number of detected mints dropped due to a full dispatch queue",
		}),
		DispatchQueueLen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "dispatch_queue_length",
			Help:      "Current number of queued enrichment dispatches",
		}),

		EnrichmentsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "runs_started_total",
			Help:      "Total number of enrichment runs started",
		}),
		EnrichmentsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "runs_succeeded_total",
			Help:      "Total number of enrichment runs ending in a cached success",
		}),
		EnrichmentsExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "runs_exhausted_total",
			Help:      "Total number of enrichment runs that spent all attempts",
		}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "fetch_errors_total",
			Help:      "Total number of metadata source errors by stage",
		}, []string{"stage"}),
		ClassificationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "classification_errors_total",
			Help:      "Total number of downstream classification failures",
		}),
		EnrichmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "run_duration_seconds",
			Help:      "Enrichment run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		MetadataFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "source_latency_seconds",
			Help:      "Metadata source call latency in seconds by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		CacheEntries: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of cache entries by outcome",
		}, []string{"outcome"}),
		PendingCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "pending_fetches",
			Help:      "Number of mints currently under active fetch",
		}),
		SweepRemovals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sweep_removals_total",
			Help:      "Total number of entries removed by sweeps",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordUpdateReceived increments the updates received counter.
func RecordUpdateReceived() {
	DefaultMetrics.UpdatesReceived.Inc()
}

// RecordMintDetected records a matched update and the emitted event.
func RecordMintDetected() {
	DefaultMetrics.UpdatesMatched.Inc()
	DefaultMetrics.MintsDetected.Inc()
}

// RecordDispatchDropped increments the dropped dispatch counter.
func RecordDispatchDropped() {
	DefaultMetrics.DispatchDropped.Inc()
}

// UpdateDispatchQueueLen updates the dispatch queue gauge.
func UpdateDispatchQueueLen(n int) {
	DefaultMetrics.DispatchQueueLen.Set(float64(n))
}

// RecordEnrichmentStarted increments the enrichment runs counter.
func RecordEnrichmentStarted() {
	DefaultMetrics.EnrichmentsStarted.Inc()
}

// RecordEnrichmentSucceeded records a successful run and its duration.
func RecordEnrichmentSucceeded(seconds float64) {
	DefaultMetrics.EnrichmentsSucceeded.Inc()
	DefaultMetrics.EnrichmentDuration.Observe(seconds)
}

// RecordEnrichmentExhausted records an exhausted run and its duration.
func RecordEnrichmentExhausted(seconds float64) {
	DefaultMetrics.EnrichmentsExhausted.Inc()
	DefaultMetrics.EnrichmentDuration.Observe(seconds)
}

// RecordFetchError records a metadata source error by stage.
func RecordFetchError(stage string) {
	DefaultMetrics.FetchErrors.WithLabelValues(stage).Inc()
}

// RecordClassificationError increments the classification failures counter.
func RecordClassificationError() {
	DefaultMetrics.ClassificationErrors.Inc()
}

// RecordSourceLatency records a metadata source call latency.
func RecordSourceLatency(operation string, seconds float64) {
	DefaultMetrics.MetadataFetchLatency.WithLabelValues(operation).Observe(seconds)
}

// UpdateCacheGauges updates the cache entry and pending gauges.
func UpdateCacheGauges(success, failed, pending int) {
	DefaultMetrics.CacheEntries.WithLabelValues("success").Set(float64(success))
	DefaultMetrics.CacheEntries.WithLabelValues("failed").Set(float64(failed))
	DefaultMetrics.PendingCount.Set(float64(pending))
}

// RecordSweepRemovals adds to the sweep removals counter.
func RecordSweepRemovals(n int) {
	DefaultMetrics.SweepRemovals.Add(float64(n))
}
