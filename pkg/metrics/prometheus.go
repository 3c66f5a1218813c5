// Package metrics provides Prometheus metrics for the clubwatch poller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the clubwatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Poll cycle metrics
	cycles          *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	fetchFailures   *prometheus.CounterVec
	eventsEmitted   *prometheus.CounterVec
	seasonResets    prometheus.Counter
	watermarkPruned prometheus.Counter

	// State metrics
	rosterSize     prometheus.Gauge
	trackedMembers prometheus.Gauge
	globalLeader   prometheus.Gauge
	stateSaves     *prometheus.CounterVec
	stateSaveTime  prometheus.Histogram
	stateLoadError prometheus.Counter

	// Upstream API metrics
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	rateLimitWaits   prometheus.Counter

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Delivery metrics
	deliveries         *prometheus.CounterVec
	deliveryDuplicates *prometheus.CounterVec
	deliveryRetries    prometheus.Counter
	deliveryRequeues   prometheus.Counter
	deliveryLatency    *prometheus.HistogramVec
	workerCount        prometheus.Gauge
	workerActive       prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "clubwatch",
		subsystem:        "poller",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.cycles = m.counterVec("cycles_total", "Poll cycles by loop and outcome", "loop", "outcome")
	m.cycleDuration = m.histogramVec("cycle_duration_milliseconds", "Poll cycle duration in milliseconds", "loop")
	m.fetchFailures = m.counterVec("fetch_failures_total", "Upstream fetch failures by target", "target")
	m.eventsEmitted = m.counterVec("events_emitted_total", "Events committed for delivery by kind", "kind")
	m.seasonResets = m.counter("season_resets_total", "Season resets detected")
	m.watermarkPruned = m.counter("watermarks_pruned_total", "Members whose watermark rows were pruned")

	m.rosterSize = m.gauge("roster_size", "Members in the persisted roster")
	m.trackedMembers = m.gauge("tracked_members", "Members with at least one watermark row")
	m.globalLeader = m.gauge("global_leader_watermark", "Current global leader watermark")
	m.stateSaves = m.counterVec("state_saves_total", "State saves by outcome", "outcome")
	m.stateSaveTime = m.histogram("state_save_latency_milliseconds", "State save latency in milliseconds")
	m.stateLoadError = m.counter("state_load_errors_total", "State loads that fell back to an empty state")

	m.upstreamRequests = m.counterVec("upstream_requests_total", "Upstream API requests by endpoint and status", "endpoint", "status")
	m.upstreamLatency = m.histogramVec("upstream_latency_milliseconds", "Upstream API latency in milliseconds", "endpoint")
	m.rateLimitWaits = m.counter("upstream_rate_limit_waits_total", "Requests delayed by the client-side rate limiter")

	m.queueSize = m.gauge("queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Total number of events enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Total number of events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.deliveries = m.counterVec("deliveries_total", "Event deliveries by sink and outcome", "sink", "outcome")
	m.deliveryDuplicates = m.counterVec("delivery_duplicates_total", "Deliveries skipped because the sink already received the event", "sink")
	m.deliveryRetries = m.counter("delivery_retries_total", "Delivery retry attempts")
	m.deliveryRequeues = m.counter("delivery_redeliveries_total", "Events handed back to the queue after an incomplete fan-out")
	m.deliveryLatency = m.histogramVec("delivery_latency_milliseconds", "Per-sink delivery latency in milliseconds", "sink")
	m.workerCount = m.gauge("worker_count", "Configured delivery workers")
	m.workerActive = m.gauge("worker_active_count", "Delivery workers currently handling an event")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Poll cycle metrics.

// RecordCycle counts a finished cycle and observes its duration.
func RecordCycle(loop, outcome string, durationMs float64) {
	globalManager.cycles.WithLabelValues(loop, outcome).Inc()
	globalManager.cycleDuration.WithLabelValues(loop).Observe(durationMs)
}

// RecordFetchFailure counts a failed upstream fetch for target (roster, member, leader).
func RecordFetchFailure(target string) {
	globalManager.fetchFailures.WithLabelValues(target).Inc()
}

// RecordEventEmitted counts a committed event of the given kind.
func RecordEventEmitted(kind string) {
	globalManager.eventsEmitted.WithLabelValues(kind).Inc()
}

// RecordSeasonReset counts a detected season reset.
func RecordSeasonReset() {
	globalManager.seasonResets.Inc()
}

// RecordPruned adds n pruned members.
func RecordPruned(n int) {
	globalManager.watermarkPruned.Add(float64(n))
}

// State metrics.

// UpdateRosterSize sets the persisted roster size.
func UpdateRosterSize(n int) {
	globalManager.rosterSize.Set(float64(n))
}

// UpdateTrackedMembers sets the number of members with watermark rows.
func UpdateTrackedMembers(n int) {
	globalManager.trackedMembers.Set(float64(n))
}

// UpdateGlobalLeader sets the global leader watermark.
func UpdateGlobalLeader(v int) {
	globalManager.globalLeader.Set(float64(v))
}

// RecordStateSave counts a save attempt and, when it succeeded, its latency.
func RecordStateSave(ok bool, latencyMs float64) {
	if !ok {
		globalManager.stateSaves.WithLabelValues("error").Inc()
		return
	}
	globalManager.stateSaves.WithLabelValues("ok").Inc()
	globalManager.stateSaveTime.Observe(latencyMs)
}

// RecordStateLoadError counts a startup load that fell back to empty state.
func RecordStateLoadError() {
	globalManager.stateLoadError.Inc()
}

// Upstream metrics.

// RecordUpstreamRequest counts an upstream request and observes its latency.
func RecordUpstreamRequest(endpoint, status string, latencyMs float64) {
	globalManager.upstreamRequests.WithLabelValues(endpoint, status).Inc()
	globalManager.upstreamLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordRateLimitWait counts a request delayed by the rate limiter.
func RecordRateLimitWait() {
	globalManager.rateLimitWaits.Inc()
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Delivery metrics.

// RecordDelivery counts a delivery attempt outcome and observes its latency.
func RecordDelivery(sink, outcome string, latencyMs float64) {
	globalManager.deliveries.WithLabelValues(sink, outcome).Inc()
	globalManager.deliveryLatency.WithLabelValues(sink).Observe(latencyMs)
}

// RecordDeliveryDuplicate counts a delivery skipped by the deduper.
func RecordDeliveryDuplicate(sink string) {
	globalManager.deliveryDuplicates.WithLabelValues(sink).Inc()
}

// RecordDeliveryRetry counts a retry attempt.
func RecordDeliveryRetry() {
	globalManager.deliveryRetries.Inc()
}

// RecordDeliveryRedelivery counts an event requeued for another delivery round.
func RecordDeliveryRedelivery() {
	globalManager.deliveryRequeues.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
