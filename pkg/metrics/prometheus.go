// Package metrics provides Prometheus metrics for the harvest pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the harvest service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Governor
	governorDelay    prometheus.Gauge
	governorRequests *prometheus.CounterVec
	governorWait     prometheus.Histogram

	// Upstream API
	apiCalls       *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
	apiRetries     *prometheus.CounterVec
	apiRateLimited prometheus.Gauge

	// Walker
	matchesFetched   prometheus.Counter
	matchesSkipped   *prometheus.CounterVec
	matchesDuplicate prometheus.Counter
	playersProcessed *prometheus.CounterVec

	// Queue
	queueSize      prometheus.Gauge
	queueEnqueued  prometheus.Counter
	queueDequeued  prometheus.Counter
	queueRejected  *prometheus.CounterVec
	queueCapacity  prometheus.Gauge
	workerActive   prometheus.Gauge
	workerLatency  prometheus.Histogram
	workerFailures prometheus.Counter

	// Sink
	sinkRows    *prometheus.CounterVec
	sinkErrors  *prometheus.CounterVec
	sinkLatency *prometheus.HistogramVec

	// Runs
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runLastUnix     prometheus.Gauge
	runLastSuccess  prometheus.Gauge
	runInProgress   prometheus.Gauge
	stageDurationMs *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
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
		namespace:        "harvest",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	msBuckets := []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	m.governorDelay = m.gauge("governor_delay_seconds", "Current adaptive delay between upstream calls")
	m.governorRequests = m.counterVec("governor_outcomes_total", "Upstream outcomes recorded by the governor", "class")
	m.governorWait = m.histogram("governor_wait_seconds", "Time spent waiting for the governor", []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10})

	m.apiCalls = m.counterVec("api_calls_total", "Upstream API calls by call type and outcome", "call", "outcome")
	m.apiLatency = m.histogramVec("api_call_duration_milliseconds", "Upstream API call latency in milliseconds", msBuckets, "call")
	m.apiRetries = m.counterVec("api_retries_total", "Upstream API retries by call type", "call")
	m.apiRateLimited = m.gauge("api_rate_limited_ratio", "Share of upstream calls throttled in the last run")

	m.matchesFetched = m.counter("matches_fetched_total", "Match details fetched and extracted")
	m.matchesSkipped = m.counterVec("matches_skipped_total", "Match ids skipped by reason", "reason")
	m.matchesDuplicate = m.counter("matches_duplicate_total", "Match ids already claimed earlier in the run")
	m.playersProcessed = m.counterVec("players_processed_total", "Players walked by outcome", "outcome")

	m.queueSize = m.gauge("queue_size", "Players waiting in the walker queue")
	m.queueCapacity = m.gauge("queue_capacity", "Walker queue capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Players enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Players dequeued")
	m.queueRejected = m.counterVec("queue_enqueue_errors_total", "Rejected enqueues by reason", "reason")
	m.workerActive = m.gauge("worker_active_count", "Walker workers currently running")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Time spent walking one player", msBuckets)
	m.workerFailures = m.counter("worker_errors_total", "Player jobs that returned an error")

	m.sinkRows = m.counterVec("sink_rows_total", "Rows affected by upserts per entity", "entity")
	m.sinkErrors = m.counterVec("sink_errors_total", "Failed upsert calls per entity", "entity")
	m.sinkLatency = m.histogramVec("sink_latency_milliseconds", "Upsert call latency per entity", msBuckets, "entity")

	m.runs = m.counterVec("runs_total", "Pipeline runs by terminal state", "state")
	m.runDuration = m.histogram("run_duration_seconds", "Pipeline run duration", []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600})
	m.runLastUnix = m.gauge("run_last_unix", "Unix time of the last finished run")
	m.runLastSuccess = m.gauge("run_last_success", "1 when the last run finished Done, 0 otherwise")
	m.runInProgress = m.gauge("run_in_progress", "1 while a run is executing")
	m.stageDurationMs = m.histogramVec("stage_duration_milliseconds", "Stage duration in milliseconds", msBuckets, "stage")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Current memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Current number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})
}

// UpdateGovernorDelay sets the current governor delay.
func UpdateGovernorDelay(d time.Duration) {
	globalManager.governorDelay.Set(d.Seconds())
}

// RecordGovernorOutcome counts one recorded outcome class.
func RecordGovernorOutcome(class string) {
	globalManager.governorRequests.WithLabelValues(class).Inc()
}

// RecordGovernorWait observes one wait.
func RecordGovernorWait(d time.Duration) {
	globalManager.governorWait.Observe(d.Seconds())
}

// RecordAPICall counts one upstream call attempt and its latency.
func RecordAPICall(call, outcome string, latency time.Duration) {
	globalManager.apiCalls.WithLabelValues(call, outcome).Inc()
	globalManager.apiLatency.WithLabelValues(call).Observe(float64(latency.Milliseconds()))
}

// RecordAPIRetry counts one retry of an upstream call.
func RecordAPIRetry(call string) {
	globalManager.apiRetries.WithLabelValues(call).Inc()
}

// UpdateAPIRateLimitedRatio sets the throttled share (0..1) seen in a run.
func UpdateAPIRateLimitedRatio(ratio float64) {
	globalManager.apiRateLimited.Set(ratio)
}

// RecordMatchFetched counts one extracted match.
func RecordMatchFetched() {
	globalManager.matchesFetched.Inc()
}

// RecordMatchSkipped counts one skipped match id.
func RecordMatchSkipped(reason string) {
	globalManager.matchesSkipped.WithLabelValues(reason).Inc()
}

// RecordMatchDuplicate counts one match id already claimed in the run.
func RecordMatchDuplicate() {
	globalManager.matchesDuplicate.Inc()
}

// RecordPlayerProcessed counts one walked player.
func RecordPlayerProcessed(outcome string) {
	globalManager.playersProcessed.WithLabelValues(outcome).Inc()
}

// UpdateQueueSize sets the current queue backlog.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts one enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts one dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts one rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// AddWorkerActive adjusts the running worker gauge.
func AddWorkerActive(delta int) {
	globalManager.workerActive.Add(float64(delta))
}

// RecordWorkerProcessingLatency observes one job's latency.
func RecordWorkerProcessingLatency(d time.Duration) {
	globalManager.workerLatency.Observe(float64(d.Milliseconds()))
}

// RecordWorkerError counts one failed job.
func RecordWorkerError() {
	globalManager.workerFailures.Inc()
}

// RecordSinkUpsert records one upsert call.
func RecordSinkUpsert(entity string, rows int64, latency time.Duration, err error) {
	globalManager.sinkLatency.WithLabelValues(entity).Observe(float64(latency.Milliseconds()))
	if err != nil {
		globalManager.sinkErrors.WithLabelValues(entity).Inc()
		return
	}
	globalManager.sinkRows.WithLabelValues(entity).Add(float64(rows))
}

// RecordRun records a finished run.
func RecordRun(state string, duration time.Duration, finished time.Time) {
	globalManager.runs.WithLabelValues(state).Inc()
	globalManager.runDuration.Observe(duration.Seconds())
	globalManager.runLastUnix.Set(float64(finished.Unix()))
	if state == "done" {
		globalManager.runLastSuccess.Set(1)
	} else {
		globalManager.runLastSuccess.Set(0)
	}
}

// SetRunInProgress toggles the in-progress gauge.
func SetRunInProgress(running bool) {
	if running {
		globalManager.runInProgress.Set(1)
		return
	}
	globalManager.runInProgress.Set(0)
}

// RecordStageDuration observes one stage.
func RecordStageDuration(stage string, d time.Duration) {
	globalManager.stageDurationMs.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records errors by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records errors by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage updates system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates goroutine count.
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
