// Package metrics provides Prometheus metrics for the patina ranking
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Vote pipeline
	votesApplied          *prometheus.CounterVec
	votesDuplicate        prometheus.Counter
	endorsementDuplicates prometheus.Counter
	voteApplyErrors       prometheus.Counter
	voteApplyLatency      prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount prometheus.Gauge

	// Rating store
	storeShardCount    prometheus.Gauge
	itemsTracked       prometheus.Gauge
	storeUpdateLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram

	// Scoring and backfill
	scoreComputations   prometheus.Counter
	scoreComputeLatency prometheus.Histogram
	backfillCompleted   prometheus.Counter
	backfillFailed      prometheus.Counter
	backfillRemaining   prometheus.Gauge

	// Leaderboard reads
	leaderboardQueries prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager on a custom registry, so the default Go collectors
// do not pollute the scrape.
var (
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry
	globalManager  *Manager                   //nolint:gochecknoglobals // singleton manager
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with configuration options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "patina",
		subsystem:        "ranking",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.votesApplied = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "votes_applied_total",
		Help: "Vote events applied to the rating store, by kind.",
	}, []string{"kind"})
	m.votesDuplicate = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "votes_duplicate_total",
		Help: "Vote events dropped as replays at the ingestion boundary.",
	})
	m.endorsementDuplicates = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "endorsement_duplicates_total",
		Help: "Endorsements ignored because the voter already endorsed the item.",
	})
	m.voteApplyErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "vote_apply_errors_total",
		Help: "Vote applications that failed.",
	})
	m.voteApplyLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "vote_apply_latency_ms",
		Help:    "Latency of applying one vote event, in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_size",
		Help: "Current number of queued vote events.",
	})
	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_capacity",
		Help: "Configured capacity of the vote queue.",
	})
	m.queueEnqueueTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_enqueue_total",
		Help: "Vote events accepted into the queue.",
	})
	m.queueDequeueTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_dequeue_total",
		Help: "Vote events handed to workers.",
	})
	m.queueEnqueueErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_enqueue_errors_total",
		Help: "Enqueue rejections, by reason.",
	}, []string{"reason"})

	m.workerCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_count",
		Help: "Number of vote workers.",
	})

	m.storeShardCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "store_shard_count",
		Help: "Number of shards in the rating store.",
	})
	m.itemsTracked = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "items_tracked",
		Help: "Number of items tracked in the rating store.",
	})
	m.storeUpdateLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "store_update_latency_ms",
		Help:    "Latency of rating store updates, in milliseconds.",
		Buckets: m.histogramBuckets,
	})
	m.storeQueryLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "store_query_latency_ms",
		Help:    "Latency of rating store scans and leaderboard reads, in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.scoreComputations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "score_computations_total",
		Help: "Composite score computations.",
	})
	m.scoreComputeLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "score_compute_latency_ms",
		Help:    "Latency of one composite score computation, in milliseconds.",
		Buckets: m.histogramBuckets,
	})
	m.backfillCompleted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "backfill_items_completed_total",
		Help: "Backfill queue entries that reached DONE.",
	})
	m.backfillFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "backfill_items_failed_total",
		Help: "Backfill queue entries that failed an attempt.",
	})
	m.backfillRemaining = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "backfill_remaining",
		Help: "Backfill queue entries still pending or in progress.",
	})

	m.leaderboardQueries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "leaderboard_queries_total",
		Help: "Leaderboard page reads.",
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total",
		Help: "HTTP requests, by endpoint, method, and status.",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds.",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
}

// Package-level helpers against the global manager.

func RecordVoteApplied(kind string)       { globalManager.votesApplied.WithLabelValues(kind).Inc() }
func RecordEventDuplicate()               { globalManager.votesDuplicate.Inc() }
func RecordEndorsementDuplicate()         { globalManager.endorsementDuplicates.Inc() }
func RecordVoteApplyError()               { globalManager.voteApplyErrors.Inc() }
func RecordVoteApplyLatency(ms float64)   { globalManager.voteApplyLatency.Observe(ms) }
func UpdateQueueSize(size int)            { globalManager.queueSize.Set(float64(size)) }
func UpdateQueueCapacity(capacity int)    { globalManager.queueCapacity.Set(float64(capacity)) }
func RecordQueueEnqueue()                 { globalManager.queueEnqueueTotal.Inc() }
func RecordQueueDequeue()                 { globalManager.queueDequeueTotal.Inc() }
func UpdateWorkerCount(count int)         { globalManager.workerCount.Set(float64(count)) }
func UpdateStoreShardCount(count int)     { globalManager.storeShardCount.Set(float64(count)) }
func UpdateItemsTracked(count int)        { globalManager.itemsTracked.Set(float64(count)) }
func RecordStoreUpdateLatency(ms float64) { globalManager.storeUpdateLatency.Observe(ms) }
func RecordStoreQueryLatency(ms float64)  { globalManager.storeQueryLatency.Observe(ms) }
func RecordScoreComputation()             { globalManager.scoreComputations.Inc() }
func RecordScoreComputeLatency(ms float64) {
	globalManager.scoreComputeLatency.Observe(ms)
}
func RecordBackfillCompleted()          { globalManager.backfillCompleted.Inc() }
func RecordBackfillFailed()             { globalManager.backfillFailed.Inc() }
func UpdateBackfillRemaining(count int) { globalManager.backfillRemaining.Set(float64(count)) }
func RecordLeaderboardQuery()           { globalManager.leaderboardQueries.Inc() }

func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}

// GetRegistry returns the registry backing the global manager, for serving
// /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
