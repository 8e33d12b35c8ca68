package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/qlf-monitor-api/internal/history"
)

func TestMetricsServiceObserveFetch(t *testing.T) {
	m := NewMetricsService()
	m.ObserveFetch(history.ModeProcess, history.FetchApplied, 20*time.Millisecond)
	m.ObserveFetch(history.ModeProcess, history.FetchStale, 30*time.Millisecond)
	m.ObserveFetch(history.ModeProcess, history.FetchStale, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchTotal.WithLabelValues("process", "applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchTotal.WithLabelValues("process", "stale")))
}

func TestMetricsServiceCacheRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(m.cacheHitRatio), 1e-9)
	m.SetActiveGrids(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeGrids))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveFetch(history.ModeObservation, history.FetchFailed, time.Second)
	m.ObserveDBQuery("x", time.Second)
	m.SetActiveGrids(1)
	assert.NotNil(t, m.Handler())
}

func TestMetricsServiceWatchQueue(t *testing.T) {
	m := NewMetricsService()
	backlog := 4
	assert.NoError(t, m.WatchQueue("fetch", func() int { return backlog }))

	count, err := testutil.GatherAndCount(m.Registry(), "history_queue_pending")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Error(t, m.WatchQueue("fetch", func() int { return 0 }))

	var nilMetrics *MetricsService
	assert.NoError(t, nilMetrics.WatchQueue("fetch", func() int { return 0 }))
}
