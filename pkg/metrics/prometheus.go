// Package metrics provides Prometheus metrics for the appraisal valuation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the appraisal service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline Metrics - report advancement
	invocations       *prometheus.CounterVec
	invocationLatency prometheus.Histogram
	assetsValued      prometheus.Counter
	assetsFailed      *prometheus.CounterVec
	assetsDeferred    prometheus.Counter
	reportsInProgress prometheus.Gauge
	reportsPurged     prometheus.Counter

	// Classifier Metrics
	saleCandidates *prometheus.CounterVec
	lastSales      *prometheus.CounterVec

	// Collection Cache Metrics
	collectionCache *prometheus.CounterVec

	// Oracle Metrics
	oracleQuotes *prometheus.CounterVec

	// Provider Metrics - external collaborators
	providerCalls   *prometheus.CounterVec
	providerRetries *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	limiterWait     *prometheus.HistogramVec

	// Event publishing
	eventsPublished *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - page job queue
	queueCapacity    prometheus.Gauge
	queueSize        prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueEnqueueErrs prometheus.Counter

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemCPUPercent     prometheus.Gauge
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
		namespace:        "appraisal",
		subsystem:        "valuation",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Pipeline
	m.invocations = m.counterVec("advance_invocations_total",
		"Advance invocations by outcome (advanced, complete, noop, queued, expired, conflict, error)", "outcome")
	m.invocationLatency = m.histogram("advance_duration_milliseconds",
		"Wall-clock duration of one advance invocation in milliseconds",
		[]float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 30000})
	m.assetsValued = m.counter("assets_valued_total", "Assets that produced a valuation row")
	m.assetsFailed = m.counterVec("assets_failed_total", "Assets whose valuation failed, by stage", "stage")
	m.assetsDeferred = m.counter("assets_deferred_total", "Assets returned to the pending queue because the time budget ran out")
	m.reportsInProgress = m.gauge("reports_in_progress", "Reports currently counted against admission capacity")
	m.reportsPurged = m.counter("reports_purged_total", "Expired reports removed by the cleanup job")

	// Classifier
	m.saleCandidates = m.counterVec("sale_candidates_total", "Sale candidates extracted, by confidence tier", "tier")
	m.lastSales = m.counterVec("last_sale_lookups_total", "Last-sale lookups by result (found, none, fallback)", "result")

	// Collection cache
	m.collectionCache = m.counterVec("collection_cache_total", "Collection cache lookups by result (hit, miss, shared, degraded)", "result")

	// Oracle
	m.oracleQuotes = m.counterVec("oracle_quotes_total", "Reference price quotes by kind and source", "kind", "source")

	// Providers
	m.providerCalls = m.counterVec("provider_calls_total", "External provider calls by provider and outcome", "provider", "outcome")
	m.providerRetries = m.counterVec("provider_retries_total", "Retries of transient provider failures", "provider")
	m.providerLatency = m.histogramVec("provider_latency_milliseconds", "External provider call latency in milliseconds", "provider")
	m.limiterWait = m.histogramVec("limiter_wait_milliseconds", "Time spent waiting on a provider rate limiter", "limiter")

	m.eventsPublished = m.counterVec("report_events_total", "Report events published by outcome", "outcome")

	// HTTP
	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	// Queue
	m.queueCapacity = m.gauge("queue_capacity", "Maximum page job queue capacity")
	m.queueSize = m.gauge("queue_size", "Current size of the page job queue")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrs = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")

	// Workers
	m.workerActiveCount = m.gauge("worker_active_count", "Number of valuation workers currently running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Per-asset valuation latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Total number of worker errors")

	// Errors
	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")

	// System
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemCPUPercent = m.gauge("system_cpu_percent", "Process CPU utilisation percent")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordInvocation counts one advance invocation with its outcome and duration.
func RecordInvocation(outcome string, latencyMs float64) {
	globalManager.invocations.WithLabelValues(outcome).Inc()
	globalManager.invocationLatency.Observe(latencyMs)
}

// RecordAssetValued increments the valued assets counter.
func RecordAssetValued() {
	globalManager.assetsValued.Inc()
}

// RecordAssetFailed increments the failed assets counter for a stage.
func RecordAssetFailed(stage string) {
	globalManager.assetsFailed.WithLabelValues(stage).Inc()
}

// RecordAssetsDeferred adds n to the deferred assets counter.
func RecordAssetsDeferred(n int) {
	globalManager.assetsDeferred.Add(float64(n))
}

// UpdateReportsInProgress sets the in-progress report gauge.
func UpdateReportsInProgress(count int) {
	globalManager.reportsInProgress.Set(float64(count))
}

// RecordReportsPurged adds n to the purged reports counter.
func RecordReportsPurged(n int) {
	globalManager.reportsPurged.Add(float64(n))
}

// RecordSaleCandidate counts a classifier candidate for a tier.
func RecordSaleCandidate(tier string) {
	globalManager.saleCandidates.WithLabelValues(tier).Inc()
}

// RecordLastSale counts a last-sale lookup result.
func RecordLastSale(result string) {
	globalManager.lastSales.WithLabelValues(result).Inc()
}

// RecordCollectionCache counts a collection cache lookup result.
func RecordCollectionCache(result string) {
	globalManager.collectionCache.WithLabelValues(result).Inc()
}

// RecordOracleQuote counts a reference price quote.
func RecordOracleQuote(kind, source string) {
	globalManager.oracleQuotes.WithLabelValues(kind, source).Inc()
}

// RecordProviderCall records one external provider call.
func RecordProviderCall(provider, outcome string, latencyMs float64) {
	globalManager.providerCalls.WithLabelValues(provider, outcome).Inc()
	globalManager.providerLatency.WithLabelValues(provider).Observe(latencyMs)
}

// RecordProviderRetry increments the retry counter for a provider.
func RecordProviderRetry(provider string) {
	globalManager.providerRetries.WithLabelValues(provider).Inc()
}

// RecordLimiterWait records time spent blocked on a limiter.
func RecordLimiterWait(limiter string, waitMs float64) {
	globalManager.limiterWait.WithLabelValues(limiter).Observe(waitMs)
}

// RecordEventPublished counts a report event publish attempt.
func RecordEventPublished(outcome string) {
	globalManager.eventsPublished.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrs.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// UpdateSystemCPUPercent sets the process CPU utilisation.
func UpdateSystemCPUPercent(percent float64) {
	globalManager.systemCPUPercent.Set(percent)
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
