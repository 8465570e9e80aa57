// Package metrics provides Prometheus metrics for the matchd service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by matchd.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Queue admission
	queueSize *prometheus.GaugeVec
	joins     *prometheus.CounterVec
	leaves    *prometheus.CounterVec

	// Match lifecycle
	matchesFormed    *prometheus.CounterVec
	activeMatches    prometheus.Gauge
	readyChecks      *prometheus.CounterVec
	substitutions    *prometheus.CounterVec
	votes            *prometheus.CounterVec
	matchesCompleted *prometheus.CounterVec

	// Ratings and storage
	ratingAdjustments *prometheus.CounterVec
	ratingDelta       prometheus.Histogram
	storeErrors       *prometheus.CounterVec
	storeLatency      *prometheus.HistogramVec
	totalPlayers      *prometheus.GaugeVec

	// Presentation events
	eventQueueSize     prometheus.Gauge
	eventQueueCapacity prometheus.Gauge
	eventsPublished    *prometheus.CounterVec
	eventsDropped      *prometheus.CounterVec
	sinkErrors         *prometheus.CounterVec
	dispatchLatency    prometheus.Histogram
	dispatchWorkers    prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served at /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "matchd",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval reports how often gauges sampled from state should be updated.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.queueSize = m.gaugeVec("queue_size", "Players currently waiting in each mode's pool", "mode")
	m.joins = m.counterVec("queue_joins_total", "Queue join attempts by result", "mode", "result")
	m.leaves = m.counterVec("queue_leaves_total", "Players that left a queue before a match formed", "mode")

	m.matchesFormed = m.counterVec("matches_formed_total", "Matches formed from a full pool", "mode")
	m.activeMatches = m.gauge("matches_active", "Matches between formation and archival")
	m.readyChecks = m.counterVec("ready_checks_total", "Ready-check sessions by outcome", "mode", "outcome")
	m.substitutions = m.counterVec("substitutions_total", "Players swapped in from the substitute pool", "mode")
	m.votes = m.counterVec("outcome_votes_total", "Outcome votes by result", "mode", "result")
	m.matchesCompleted = m.counterVec("matches_completed_total", "Matches with a recorded winner", "mode", "winner")

	m.ratingAdjustments = m.counterVec("rating_adjustments_total", "Audited rating mutations by reason", "mode", "reason")
	m.ratingDelta = m.histogram("rating_delta_abs", "Absolute rating change per adjustment",
		[]float64{1, 2, 5, 10, 15, 20, 25, 50, 80, 100, 250})
	m.storeErrors = m.counterVec("store_errors_total", "Rating store failures by operation", "op")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Rating store latency by operation", "op")
	m.totalPlayers = m.gaugeVec("players_total", "Players with a rating record per mode", "mode")

	m.eventQueueSize = m.gauge("event_queue_size", "Presentation events waiting for dispatch")
	m.eventQueueCapacity = m.gauge("event_queue_capacity", "Capacity of the presentation event queue")
	m.eventsPublished = m.counterVec("events_published_total", "Presentation events accepted by type", "type")
	m.eventsDropped = m.counterVec("events_dropped_total", "Presentation events dropped by reason", "reason")
	m.sinkErrors = m.counterVec("event_sink_errors_total", "Event delivery failures by sink", "sink")
	m.dispatchLatency = m.histogram("event_dispatch_latency_milliseconds", "Time to deliver an event to all sinks", m.histogramBuckets)
	m.dispatchWorkers = m.gauge("event_dispatch_workers", "Running event dispatch workers")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.httpErrors = m.counterVec("http_errors_total", "HTTP error responses by endpoint and class", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Queue admission.

// UpdateQueueSize sets the pool size for mode.
func UpdateQueueSize(mode string, size int) {
	globalManager.queueSize.WithLabelValues(mode).Set(float64(size))
}

// RecordJoin counts a join attempt; result is admitted, already_queued, already_in_match or rejected.
func RecordJoin(mode, result string) {
	globalManager.joins.WithLabelValues(mode, result).Inc()
}

// RecordLeave counts a player leaving the pool.
func RecordLeave(mode string) {
	globalManager.leaves.WithLabelValues(mode).Inc()
}

// Match lifecycle.

// RecordMatchFormed counts a match created from a full pool.
func RecordMatchFormed(mode string) {
	globalManager.matchesFormed.WithLabelValues(mode).Inc()
}

// UpdateActiveMatches sets the number of live matches.
func UpdateActiveMatches(n int) {
	globalManager.activeMatches.Set(float64(n))
}

// RecordReadyCheck counts a ready-check session outcome: started, all_ready, substituted or cancelled.
func RecordReadyCheck(mode, outcome string) {
	globalManager.readyChecks.WithLabelValues(mode, outcome).Inc()
}

// RecordSubstitutions adds n substituted players.
func RecordSubstitutions(mode string, n int) {
	globalManager.substitutions.WithLabelValues(mode).Add(float64(n))
}

// RecordVote counts an outcome vote: accepted, decided, ignored or already_voted.
func RecordVote(mode, result string) {
	globalManager.votes.WithLabelValues(mode, result).Inc()
}

// RecordMatchCompleted counts a completed match by winning team.
func RecordMatchCompleted(mode, winner string) {
	globalManager.matchesCompleted.WithLabelValues(mode, winner).Inc()
}

// Ratings and storage.

// RecordRatingAdjustment counts an audited rating change and its magnitude.
func RecordRatingAdjustment(mode, reason string, delta int) {
	globalManager.ratingAdjustments.WithLabelValues(mode, reason).Inc()
	if delta < 0 {
		delta = -delta
	}
	globalManager.ratingDelta.Observe(float64(delta))
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateTotalPlayers sets the number of rated players for mode.
func UpdateTotalPlayers(mode string, n int) {
	globalManager.totalPlayers.WithLabelValues(mode).Set(float64(n))
}

// Presentation events.

// UpdateEventQueueSize sets the number of undelivered events.
func UpdateEventQueueSize(n int) {
	globalManager.eventQueueSize.Set(float64(n))
}

// UpdateEventQueueCapacity sets the event queue capacity.
func UpdateEventQueueCapacity(n int) {
	globalManager.eventQueueCapacity.Set(float64(n))
}

// RecordEventPublished counts an accepted event.
func RecordEventPublished(eventType string) {
	globalManager.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped counts an event that never reached the queue.
func RecordEventDropped(reason string) {
	globalManager.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordSinkError counts a failed delivery to sink.
func RecordSinkError(sink string) {
	globalManager.sinkErrors.WithLabelValues(sink).Inc()
}

// RecordDispatchLatency records the fan-out time of one event.
func RecordDispatchLatency(latencyMs float64) {
	globalManager.dispatchLatency.Observe(latencyMs)
}

// UpdateDispatchWorkers sets the number of running dispatch workers.
func UpdateDispatchWorkers(n int) {
	globalManager.dispatchWorkers.Set(float64(n))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError counts an error response.
func RecordHTTPError(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records an average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry all global collectors are registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
