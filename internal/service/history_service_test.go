package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qlf-monitor-api/internal/history"
	"github.com/noah-isme/qlf-monitor-api/internal/models"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

type exposureRepoStub struct {
	calls   int
	queries []models.HistoryQuery
	records []models.ExposureHistoryRecord
	total   int
	err     error
}

func (s *exposureRepoStub) List(_ context.Context, q models.HistoryQuery) ([]models.ExposureHistoryRecord, int, error) {
	s.calls++
	s.queries = append(s.queries, q)
	return s.records, s.total, s.err
}

type processRepoStub struct {
	calls   int
	records []models.ProcessHistoryRecord
	total   int
	latest  *int64
	err     error
}

func (s *processRepoStub) List(context.Context, models.HistoryQuery) ([]models.ProcessHistoryRecord, int, error) {
	s.calls++
	return s.records, s.total, s.err
}

func (s *processRepoStub) LatestID(context.Context) (*int64, error) {
	return s.latest, s.err
}

func ptr[T any](v T) *T {
	return &v
}

func sampleExposure(id int64) models.Exposure {
	return models.Exposure{
		ExposureID: id,
		DateObs:    ptr(time.Date(2020, 5, 5, 10, 0, 0, 0, time.UTC)),
		Night:      ptr("20200505"),
		Flavor:     ptr("science"),
		Program:    ptr("dark"),
	}
}

func TestHistoryServiceObservationRows(t *testing.T) {
	start := time.Date(2020, 5, 5, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	exposures := &exposureRepoStub{
		records: []models.ExposureHistoryRecord{{
			Exposure:                   sampleExposure(3),
			LastExposureProcessID:      ptr(int64(11)),
			LastExposureProcessQATests: models.QATests{map[string]any{"steps_status": []any{"NORMAL"}}},
			LastExposureProcessStart:   &start,
			LastExposureProcessEnd:     &end,
		}},
		total: 40,
	}
	svc := NewHistoryService(exposures, &processRepoStub{}, nil, NewMetricsService(), 0, nil)

	res, err := svc.FetchHistory(context.Background(), history.FetchRequest{
		Mode:      history.ModeObservation,
		StartDate: time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2020, 5, 6, 0, 0, 0, 0, time.UTC),
		Order:     "-dateobs",
		Offset:    25,
		Limit:     25,
		Filter:    "dark",
	})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Total)
	require.Len(t, res.Rows, 1)

	row, ok := res.Rows[0].(history.ObservationRow)
	require.True(t, ok)
	assert.Equal(t, int64(3), row.Fields["exposure_id"])
	assert.Equal(t, "20200505", row.Fields["night"])
	assert.Nil(t, row.Fields["tile"])
	assert.Equal(t, int64(11), row.Fields["last_exposure_process_id"])
	require.NotNil(t, row.LastExposureProcessRuntime)
	assert.Equal(t, "0:01:30", *row.LastExposureProcessRuntime)
	assert.True(t, row.LastExposureProcessQATests.Passed())

	id, linked := row.ProcessID()
	assert.True(t, linked)
	assert.Equal(t, int64(11), id)

	require.Len(t, exposures.queries, 1)
	q := exposures.queries[0]
	assert.Equal(t, "-dateobs", q.Order)
	assert.Equal(t, 25, q.Offset)
	assert.Equal(t, "dark", q.Filter)
}

func TestHistoryServiceProcessRows(t *testing.T) {
	start := time.Date(2020, 5, 5, 10, 0, 0, 0, time.UTC)
	processes := &processRepoStub{
		records: []models.ProcessHistoryRecord{{
			Process: models.Process{
				ID:         7,
				Start:      &start,
				ExposureID: 3,
				QATests:    models.QATests{map[string]any{"steps_status": []any{"FAILURE"}}},
			},
			Exposure:              sampleExposure(3),
			LastExposureProcessID: ptr(int64(7)),
		}},
		total: 1,
	}
	svc := NewHistoryService(&exposureRepoStub{}, processes, nil, nil, 0, nil)

	res, err := svc.FetchHistory(context.Background(), history.FetchRequest{Mode: history.ModeProcess, Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row, ok := res.Rows[0].(history.ProcessRow)
	require.True(t, ok)
	assert.Equal(t, int64(7), row.PK)
	assert.Equal(t, start, row.Fields["start"])
	assert.Nil(t, row.Fields["runtime"])
	assert.False(t, row.RuntimeKnown())
	assert.False(t, row.QATests.Passed())

	night, exposureID, ok := row.Preview()
	require.True(t, ok)
	assert.Equal(t, "20200505", night)
	assert.Equal(t, int64(3), exposureID)
}

func TestHistoryServiceServesRepeatedPagesFromCache(t *testing.T) {
	exposures := &exposureRepoStub{records: []models.ExposureHistoryRecord{{Exposure: sampleExposure(3)}}, total: 1}
	cache := NewCacheService(newMemoryCache(), CacheConfig{Enabled: true, TTL: time.Minute}, nil, nil)
	svc := NewHistoryService(exposures, &processRepoStub{}, cache, nil, time.Minute, nil)

	req := history.FetchRequest{Mode: history.ModeObservation, Order: "-dateobs", Limit: 25}
	first, err := svc.FetchHistory(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.FetchHistory(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, exposures.calls)
	assert.Equal(t, first.Total, second.Total)
	row := second.Rows[0].(history.ObservationRow)
	assert.Equal(t, "20200505", row.Fields["night"])

	req.Filter = "bright"
	_, err = svc.FetchHistory(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, exposures.calls)
}

func TestHistoryServiceInvalidateDropsModePages(t *testing.T) {
	exposures := &exposureRepoStub{records: []models.ExposureHistoryRecord{{Exposure: sampleExposure(3)}}, total: 1}
	processes := &processRepoStub{}
	cache := NewCacheService(newMemoryCache(), CacheConfig{Enabled: true, TTL: time.Minute}, nil, nil)
	svc := NewHistoryService(exposures, processes, cache, nil, time.Minute, nil)
	ctx := context.Background()

	obs := history.FetchRequest{Mode: history.ModeObservation, Order: "-dateobs", Limit: 25}
	proc := history.FetchRequest{Mode: history.ModeProcess, Order: "-pk", Limit: 25}
	for _, req := range []history.FetchRequest{obs, proc} {
		_, err := svc.FetchHistory(ctx, req)
		require.NoError(t, err)
	}

	require.NoError(t, svc.Invalidate(ctx, history.ModeObservation))
	for _, req := range []history.FetchRequest{obs, proc} {
		_, err := svc.FetchHistory(ctx, req)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, exposures.calls)
	assert.Equal(t, 1, processes.calls)
}

func TestHistoryServicePropagatesFailures(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewHistoryService(&exposureRepoStub{err: boom}, &processRepoStub{err: boom}, nil, nil, 0, nil)

	_, err := svc.FetchHistory(context.Background(), history.FetchRequest{Mode: history.ModeObservation})
	require.ErrorIs(t, err, boom)

	_, err = svc.FetchHistory(context.Background(), history.FetchRequest{Mode: "bogus"})
	require.Error(t, err)

	_, err = svc.LatestProcessID(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestHistoryServiceLatestProcessID(t *testing.T) {
	svc := NewHistoryService(&exposureRepoStub{}, &processRepoStub{latest: ptr(int64(42))}, nil, nil, 0, nil)
	id, err := svc.LatestProcessID(context.Background())
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(42), *id)
}

type blockingExposureRepo struct {
	entered chan struct{}
	gate    chan struct{}

	mu      sync.Mutex
	ctxErrs []error
}

func (r *blockingExposureRepo) List(ctx context.Context, _ models.HistoryQuery) ([]models.ExposureHistoryRecord, int, error) {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.gate
	r.mu.Lock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return []models.ExposureHistoryRecord{{Exposure: sampleExposure(3)}}, 1, nil
}

func TestHistoryServiceSharedLoadSurvivesCancelledCaller(t *testing.T) {
	repo := &blockingExposureRepo{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	svc := NewHistoryService(repo, &processRepoStub{}, nil, nil, 0, nil)
	req := history.FetchRequest{Mode: history.ModeObservation, Order: "-dateobs", Limit: 25}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.FetchHistory(ctxA, req)
		errA <- err
	}()
	<-repo.entered

	type outcome struct {
		res history.FetchResult
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		res, err := svc.FetchHistory(context.Background(), req)
		resB <- outcome{res, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared load")
	}
	close(repo.gate)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 1, b.res.Total)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, err := range repo.ctxErrs {
		assert.NoError(t, err)
	}
}

func TestPageCacheKeyKeepsFieldBoundaries(t *testing.T) {
	a := models.HistoryQuery{Order: "-pk|0|25|dark", Offset: 0, Limit: 25}
	b := models.HistoryQuery{Order: "-pk", Offset: 0, Limit: 25, Filter: "dark|0|25|"}
	assert.NotEqual(t, pageCacheKey(history.ModeProcess, a), pageCacheKey(history.ModeProcess, b))
	assert.Equal(t, pageCacheKey(history.ModeProcess, a), pageCacheKey(history.ModeProcess, a))
	assert.True(t, strings.HasPrefix(pageCacheKey(history.ModeProcess, a), "history:page:process:"))

	processes := &processRepoStub{}
	cache := NewCacheService(newMemoryCache(), CacheConfig{Enabled: true, TTL: time.Minute}, nil, nil)
	svc := NewHistoryService(&exposureRepoStub{}, processes, cache, nil, time.Minute, nil)
	for _, q := range []models.HistoryQuery{a, b} {
		_, err := svc.FetchHistory(context.Background(), history.FetchRequest{
			Mode:   history.ModeProcess,
			Order:  q.Order,
			Limit:  q.Limit,
			Filter: q.Filter,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, processes.calls)
}
