package service

import (
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a lightweight view of the counters for the admin health endpoint.
type MetricsSnapshot struct {
	ActiveSessions    int64     `json:"activeSessions"`
	SessionsTotal     uint64    `json:"sessionsTotal"`
	DispatchTotal     uint64    `json:"dispatchTotal"`
	AverageDispatchMs float64   `json:"averageDispatchMs"`
	RateLimited       uint64    `json:"rateLimited"`
	CacheHitRatio     float64   `json:"cacheHitRatio"`
	Goroutines        int       `json:"goroutines"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// MetricsService encapsulates Prometheus instrumentation for sessions, dispatch and the admin HTTP surface.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchTotal    *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	sessionsTotal    *prometheus.CounterVec
	rateLimited      prometheus.Counter
	frameErrors      prometheus.Counter
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter

	activeSessions        int64
	sessionCount          uint64
	dispatchCount         uint64
	dispatchDurationTotal uint64
	rateLimitedCount      uint64
	cacheHitCount         uint64
	cacheMissCount        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of admin HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of admin HTTP requests",
	}, []string{"method", "path", "status"})

	dispatchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_duration_seconds",
		Help:    "Duration of dispatched operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	dispatchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_total",
		Help: "Total dispatched operations by result code",
	}, []string{"op", "code"})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Number of open sessions",
	})

	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_total",
		Help: "Total sessions accepted by transport",
	}, []string{"transport"})

	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_rate_limited_total",
		Help: "Requests rejected by the per-session rate limiter",
	})

	frameErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_frame_errors_total",
		Help: "Malformed frames received",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dispatchDuration, dispatchTotal, sessionsActive, sessionsTotal,
		rateLimited, frameErrors, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		dispatchDuration: dispatchDuration,
		dispatchTotal:    dispatchTotal,
		sessionsActive:   sessionsActive,
		sessionsTotal:    sessionsTotal,
		rateLimited:      rateLimited,
		frameErrors:      frameErrors,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
	}
}

// RegisterDBStats exports connection pool statistics for db.
func (m *MetricsService) RegisterDBStats(db *sql.DB, name string) error {
	if m == nil || db == nil {
		return nil
	}
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records admin HTTP request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveDispatch records one dispatched operation and its result code.
func (m *MetricsService) ObserveDispatch(op, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(op).Observe(duration.Seconds())
	m.dispatchTotal.WithLabelValues(op, code).Inc()
	atomic.AddUint64(&m.dispatchCount, 1)
	atomic.AddUint64(&m.dispatchDurationTotal, uint64(duration.Nanoseconds()))
}

// SessionOpened tracks a newly accepted session.
func (m *MetricsService) SessionOpened(transport string) {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
	m.sessionsTotal.WithLabelValues(transport).Inc()
	atomic.AddInt64(&m.activeSessions, 1)
	atomic.AddUint64(&m.sessionCount, 1)
}

// SessionClosed tracks a session transitioning to closed.
func (m *MetricsService) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	atomic.AddInt64(&m.activeSessions, -1)
}

// RateLimited counts a request rejected by the session limiter.
func (m *MetricsService) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
	atomic.AddUint64(&m.rateLimitedCount, 1)
}

// FrameError counts a malformed inbound frame.
func (m *MetricsService) FrameError() {
	if m == nil {
		return
	}
	m.frameErrors.Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	dispatched := atomic.LoadUint64(&m.dispatchCount)
	dispatchDuration := atomic.LoadUint64(&m.dispatchDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgDispatchMs float64
	if dispatched > 0 {
		avgDispatchMs = float64(dispatchDuration) / float64(dispatched) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		ActiveSessions:    atomic.LoadInt64(&m.activeSessions),
		SessionsTotal:     atomic.LoadUint64(&m.sessionCount),
		DispatchTotal:     dispatched,
		AverageDispatchMs: avgDispatchMs,
		RateLimited:       atomic.LoadUint64(&m.rateLimitedCount),
		CacheHitRatio:     cacheRatio,
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
}
