package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
)

// CacheRepository is the key/value store behind CacheService.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheConfig tunes the history page cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// CacheService fronts the history page cache with metrics. Cache failures
// never fail a fetch: a broken store reads as a miss and writes are dropped.
// A nil or disabled service always misses.
type CacheService struct {
	repo    CacheRepository
	cfg     CacheConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCacheService constructs a CacheService.
func NewCacheService(repo CacheRepository, cfg CacheConfig, metrics *MetricsService, logger *zap.Logger) *CacheService {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, cfg: cfg, metrics: metrics, logger: logger}
}

// Enabled reports whether lookups can hit.
func (s *CacheService) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.repo != nil
}

// Get decodes the entry under key into dest and reports whether it was found.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("history cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key. A non-positive ttl uses the configured TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.cfg.TTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("history cache write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes every entry matching the glob pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("history cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}
