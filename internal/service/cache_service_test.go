package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCache struct {
	err     error
	ttl     time.Duration
	pattern string
}

func (b *brokenCache) Get(context.Context, string, interface{}) error { return b.err }

func (b *brokenCache) Set(_ context.Context, _ string, _ interface{}, ttl time.Duration) error {
	b.ttl = ttl
	return b.err
}

func (b *brokenCache) DeleteByPattern(_ context.Context, pattern string) error {
	b.pattern = pattern
	return b.err
}

func TestCacheServiceDisabledAlwaysMisses(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, CacheConfig{Enabled: false}, nil, nil)
	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))

	var got int
	hit, err := svc.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, repo.entries)

	var nilSvc *CacheService
	hit, err = nilSvc.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceRecordsHitsAndMisses(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemoryCache(), CacheConfig{Enabled: true}, metrics, nil)
	ctx := context.Background()

	var got string
	hit, err := svc.Get(ctx, "history:page:process:a", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "history:page:process:a", "page", 0))
	hit, err = svc.Get(ctx, "history:page:process:a", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "page", got)

	assert.Equal(t, uint64(1), metrics.hits.Load())
	assert.Equal(t, uint64(1), metrics.misses.Load())
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.cacheHitRatio))
}

func TestCacheServiceSurfacesStoreFailures(t *testing.T) {
	repo := &brokenCache{err: errors.New("connection reset")}
	svc := NewCacheService(repo, CacheConfig{Enabled: true, TTL: time.Minute}, nil, nil)
	ctx := context.Background()

	var got string
	hit, err := svc.Get(ctx, "k", &got)
	assert.False(t, hit)
	assert.Error(t, err)

	assert.Error(t, svc.Set(ctx, "k", "v", 0))
	assert.Equal(t, time.Minute, repo.ttl)

	assert.Error(t, svc.Invalidate(ctx, "history:page:observation:*"))
	assert.Equal(t, "history:page:observation:*", repo.pattern)
}
