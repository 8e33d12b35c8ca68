package service

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/qlf-monitor-api/internal/history"
)

// MetricsService owns the Prometheus registry of the process. Every method is
// safe on a nil receiver so metrics stay optional for tests and tools.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	cacheLookup   *prometheus.HistogramVec
	cacheWrite    prometheus.Histogram
	cacheHitRatio prometheus.Gauge
	hits, misses  atomic.Uint64

	dbQueryDuration *prometheus.HistogramVec
	fetchTotal      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	activeGrids     prometheus.Gauge
}

// NewMetricsService registers the HTTP, cache, database and grid collectors
// together with the Go runtime and process collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookup: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "history_cache_lookup_seconds",
			Help:    "Latency of page cache lookups by result",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"result"}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "history_cache_write_seconds",
			Help:    "Latency of page cache writes",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "history_cache_hit_ratio",
			Help: "Share of page cache lookups answered from Redis",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "history_fetch_total",
			Help: "History grid fetches by mode and how they settled",
		}, []string{"mode", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "history_fetch_duration_seconds",
			Help:    "Time from dispatch to settlement of history grid fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		activeGrids: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "history_grids_active",
			Help: "Mounted history grids",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration, m.requestTotal,
		m.cacheLookup, m.cacheWrite, m.cacheHitRatio,
		m.dbQueryDuration, m.fetchTotal, m.fetchDuration, m.activeGrids,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format, or 503 when metrics are disabled.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordCacheOperation records a page cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	m.cacheLookup.WithLabelValues(result).Observe(duration.Seconds())
	hits := m.hits.Load()
	if total := hits + m.misses.Load(); total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite records a page cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing under a short query label.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveFetch implements history.FetchObserver.
func (m *MetricsService) ObserveFetch(mode history.GridMode, outcome history.FetchOutcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(string(mode), string(outcome)).Inc()
	m.fetchDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())
}

// SetActiveGrids publishes the number of mounted grids.
func (m *MetricsService) SetActiveGrids(n int) {
	if m == nil {
		return
	}
	m.activeGrids.Set(float64(n))
}

// WatchQueue exports the backlog of a worker queue as history_queue_pending.
// Registering the same queue name twice returns the registry's error.
func (m *MetricsService) WatchQueue(name string, pending func() int) error {
	if m == nil {
		return nil
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "history_queue_pending",
		Help:        "Jobs waiting for a free worker",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 {
		return float64(pending())
	})
	return m.registry.Register(gauge)
}
