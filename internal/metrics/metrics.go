// Package metrics provides Prometheus metrics for monitoring PageRecon.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total API requests by command and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagerecon_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"command", "status"},
	)

	// RequestDuration tracks API request duration by command.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagerecon_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
		},
		[]string{"command"},
	)

	// AnalysesTotal counts analyses by outcome.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagerecon_analyses_total",
			Help: "Total analyses run by outcome",
		},
		[]string{"outcome"},
	)

	// AnalysisDuration tracks end-to-end analysis duration.
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagerecon_analysis_duration_seconds",
			Help:    "Analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~128s
		},
	)

	// InterceptedLogged counts request sightings accepted into the log.
	InterceptedLogged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pagerecon_intercepted_logged_total",
			Help: "Request sightings accepted into the per-page log",
		},
	)

	// InterceptedExcluded counts sightings rejected by the relevance filter.
	InterceptedExcluded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pagerecon_intercepted_excluded_total",
			Help: "Request sightings rejected by the relevance filter",
		},
	)

	// InterceptedDropped counts relevant sightings dropped at log capacity.
	InterceptedDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pagerecon_intercepted_dropped_total",
			Help: "Relevant sightings dropped because the log was full",
		},
	)

	// ChannelTimeouts counts channel queries that resolved by timeout.
	ChannelTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagerecon_channel_timeouts_total",
			Help: "Channel queries that degraded to an empty result",
		},
		[]string{"action"},
	)

	// BrowserPoolSize shows the configured pool size.
	BrowserPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagerecon_browser_pool_size",
			Help: "Configured browser pool size",
		},
	)

	// BrowserPoolAvailable shows available browsers in the pool.
	BrowserPoolAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagerecon_browser_pool_available",
			Help: "Available browsers in pool",
		},
	)

	// BrowserPoolAcquired counts total browser acquisitions.
	BrowserPoolAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pagerecon_browser_pool_acquired_total",
			Help: "Total browser acquisitions from pool",
		},
	)

	// BrowserPoolRecycled counts browser recycles.
	BrowserPoolRecycled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pagerecon_browser_pool_recycled_total",
			Help: "Total browsers recycled",
		},
	)

	// ActiveSessions shows current active sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagerecon_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagerecon_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagerecon_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagerecon_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagerecon_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AnalysesTotal,
		AnalysisDuration,
		InterceptedLogged,
		InterceptedExcluded,
		InterceptedDropped,
		ChannelTimeouts,
		BrowserPoolSize,
		BrowserPoolAvailable,
		BrowserPoolAcquired,
		BrowserPoolRecycled,
		ActiveSessions,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates memory metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

// updateMemoryMetrics updates memory-related metrics.
func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed API request.
func RecordRequest(command, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(command, status).Inc()
	RequestDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordAnalysis records one completed analysis.
func RecordAnalysis(outcome string, duration time.Duration) {
	AnalysesTotal.WithLabelValues(outcome).Inc()
	AnalysisDuration.Observe(duration.Seconds())
}

// RecordRequestLogged records a sighting accepted into the log.
func RecordRequestLogged() {
	InterceptedLogged.Inc()
}

// RecordRequestExcluded records a sighting rejected by the relevance filter.
func RecordRequestExcluded() {
	InterceptedExcluded.Inc()
}

// RecordRequestDropped records a relevant sighting dropped at capacity.
func RecordRequestDropped() {
	InterceptedDropped.Inc()
}

// RecordChannelTimeout records a channel query that timed out.
func RecordChannelTimeout(action string) {
	ChannelTimeouts.WithLabelValues(action).Inc()
}

// UpdatePoolMetrics updates browser pool metrics.
func UpdatePoolMetrics(size, available int) {
	BrowserPoolSize.Set(float64(size))
	BrowserPoolAvailable.Set(float64(available))
}

// UpdateSessionMetrics updates session count metric.
func UpdateSessionMetrics(count int) {
	ActiveSessions.Set(float64(count))
}
