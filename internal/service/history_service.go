package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/qlf-monitor-api/internal/history"
	"github.com/noah-isme/qlf-monitor-api/internal/models"
)

type exposureHistoryRepository interface {
	List(ctx context.Context, q models.HistoryQuery) ([]models.ExposureHistoryRecord, int, error)
}

type processHistoryRepository interface {
	List(ctx context.Context, q models.HistoryQuery) ([]models.ProcessHistoryRecord, int, error)
	LatestID(ctx context.Context) (*int64, error)
}

const (
	pageCachePrefix = "history:page:"
	pageLoadTimeout = 30 * time.Second
)

type historyPage[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// HistoryService is the history data source behind every grid. It answers
// fetches from PostgreSQL and keeps recently served pages in Redis.
type HistoryService struct {
	exposures exposureHistoryRepository
	processes processHistoryRepository
	cache     *CacheService
	metrics   *MetricsService
	cacheTTL  time.Duration
	logger    *zap.Logger

	// bounds a shared page load, which outlives any single caller
	loadTimeout time.Duration
	// collapses identical page queries issued by concurrent grids
	loads singleflight.Group
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(exposures exposureHistoryRepository, processes processHistoryRepository, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		exposures: exposures,
		processes: processes,
		cache:     cache,
		metrics:   metrics,
		cacheTTL:  cacheTTL,
		logger:    logger,

		loadTimeout: pageLoadTimeout,
	}
}

// FetchHistory implements history.Fetcher.
func (s *HistoryService) FetchHistory(ctx context.Context, req history.FetchRequest) (history.FetchResult, error) {
	q := models.HistoryQuery{
		Start:  req.StartDate,
		End:    req.EndDate,
		Order:  req.Order,
		Offset: req.Offset,
		Limit:  req.Limit,
		Filter: req.Filter,
	}
	switch req.Mode {
	case history.ModeObservation:
		page, err := cachedPage(ctx, s, req.Mode, q, "history_exposures", s.exposures.List)
		if err != nil {
			return history.FetchResult{}, err
		}
		rows := make([]history.Row, len(page.Records))
		for i, rec := range page.Records {
			rows[i] = observationRow(rec)
		}
		return history.FetchResult{Rows: rows, Total: page.Total}, nil
	case history.ModeProcess:
		page, err := cachedPage(ctx, s, req.Mode, q, "history_processes", s.processes.List)
		if err != nil {
			return history.FetchResult{}, err
		}
		rows := make([]history.Row, len(page.Records))
		for i, rec := range page.Records {
			rows[i] = processRow(rec)
		}
		return history.FetchResult{Rows: rows, Total: page.Total}, nil
	default:
		return history.FetchResult{}, fmt.Errorf("unknown grid mode %q", req.Mode)
	}
}

// LatestProcessID returns the process the pipeline touched most recently.
func (s *HistoryService) LatestProcessID(ctx context.Context) (*int64, error) {
	start := time.Now()
	id, err := s.processes.LatestID(ctx)
	s.metrics.ObserveDBQuery("history_latest_process", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("latest process: %w", err)
	}
	return id, nil
}

func cachedPage[T any](ctx context.Context, s *HistoryService, mode history.GridMode, q models.HistoryQuery, label string,
	list func(context.Context, models.HistoryQuery) ([]T, int, error)) (historyPage[T], error) {
	key := pageCacheKey(mode, q)
	var page historyPage[T]
	if hit, err := s.cache.Get(ctx, key, &page); err == nil && hit {
		return page, nil
	}

	// The load runs detached from ctx so one caller giving up does not fail
	// the others waiting on the same key.
	ch := s.loads.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		start := time.Now()
		records, total, err := list(loadCtx, q)
		s.metrics.ObserveDBQuery(label, time.Since(start))
		if err != nil {
			return nil, err
		}
		page := historyPage[T]{Records: records, Total: total}
		if err := s.cache.Set(loadCtx, key, page, s.cacheTTL); err != nil {
			s.logger.Debug("history page not cached", zap.String("key", key), zap.Error(err))
		}
		return page, nil
	})

	select {
	case <-ctx.Done():
		return historyPage[T]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return historyPage[T]{}, res.Err
		}
		if res.Shared {
			s.logger.Debug("history page query shared", zap.String("key", key))
		}
		return res.Val.(historyPage[T]), nil
	}
}

// Invalidate drops every cached page of mode so the next fetch reads the database.
func (s *HistoryService) Invalidate(ctx context.Context, mode history.GridMode) error {
	return s.cache.Invalidate(ctx, fmt.Sprintf("%s%s:*", pageCachePrefix, mode))
}

func pageCacheKey(mode history.GridMode, q models.HistoryQuery) string {
	// JSON keeps field boundaries, so a filter holding a separator cannot
	// collide with a different query.
	raw, _ := json.Marshal([]any{
		q.Start.Format(time.DateOnly),
		q.End.Format(time.DateOnly),
		q.Order,
		q.Offset,
		q.Limit,
		q.Filter,
	})
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s%s:%s", pageCachePrefix, mode, hex.EncodeToString(sum[:12]))
}

func observationRow(rec models.ExposureHistoryRecord) history.ObservationRow {
	fields := exposureRecord(rec.Exposure)
	fields["last_exposure_process_id"] = value(rec.LastExposureProcessID)
	return history.ObservationRow{
		Fields:                     fields,
		LastExposureProcessID:      rec.LastExposureProcessID,
		LastExposureProcessQATests: qaResults(rec.LastExposureProcessQATests),
		LastExposureProcessRuntime: rec.LastExposureProcessRuntime(),
	}
}

func processRow(rec models.ProcessHistoryRecord) history.ProcessRow {
	fields := history.Record{
		"pk":               rec.ID,
		"id":               rec.ID,
		"pipeline_name":    value(rec.PipelineName),
		"process_dir":      value(rec.ProcessDir),
		"version":          value(rec.Version),
		"start":            value(rec.Start),
		"end":              value(rec.End),
		"status":           value(rec.Status),
		"exposure_id":      rec.ExposureID,
		"configuration_id": value(rec.ConfigurationID),
		"runtime":          value(rec.Runtime()),
		"datemjd":          value(rec.Exposure.DateMJD()),
	}
	return history.ProcessRow{
		PK:                         rec.ID,
		Fields:                     fields,
		QATests:                    qaResults(rec.QATests),
		Exposure:                   exposureRecord(rec.Exposure),
		LastExposureProcessID:      rec.LastExposureProcessID,
		LastExposureProcessQATests: qaResults(rec.LastExposureProcessQATests),
	}
}

func exposureRecord(e models.Exposure) history.Record {
	return history.Record{
		"exposure_id": e.ExposureID,
		"telra":       value(e.TelRA),
		"teldec":      value(e.TelDec),
		"tile":        value(e.Tile),
		"dateobs":     value(e.DateObs),
		"datemjd":     value(e.DateMJD()),
		"flavor":      value(e.Flavor),
		"night":       value(e.Night),
		"airmass":     value(e.Airmass),
		"program":     value(e.Program),
		"exptime":     value(e.ExpTime),
	}
}

func qaResults(tests models.QATests) history.QAResults {
	if tests == nil {
		return nil
	}
	return history.QAResults(tests)
}

// value dereferences nullable columns; NULL becomes an untyped nil, which the
// interpreter treats as a missing field.
func value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
