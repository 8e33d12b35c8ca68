package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qlf-monitor-api/internal/history"
)

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string, interface{}) error { return f.err }
func (f failingStore) Set(context.Context, string, interface{}, time.Duration) error {
	return f.err
}

func TestPreferenceServicePageSizeRoundTrip(t *testing.T) {
	store := newMemoryCache()
	svc := NewPreferenceService(store, time.Hour, nil)
	ctx := context.Background()

	size, err := svc.PageSize(ctx, "user-1", history.ModeProcess)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, svc.SetPageSize(ctx, "user-1", history.ModeProcess, 50))
	size, err = svc.PageSize(ctx, "user-1", history.ModeProcess)
	require.NoError(t, err)
	assert.Equal(t, 50, size)

	size, err = svc.PageSize(ctx, "user-1", history.ModeObservation)
	require.NoError(t, err)
	assert.Zero(t, size, "preferences are kept per mode")

	_, stored := store.entries["history:pagesize:user-1:process"]
	assert.True(t, stored)
}

func TestPreferenceServiceRejectsNonPositiveSize(t *testing.T) {
	svc := NewPreferenceService(newMemoryCache(), 0, nil)
	err := svc.SetPageSize(context.Background(), "user-1", history.ModeProcess, 0)
	require.Error(t, err)
}

func TestPreferenceServiceStoreAdapter(t *testing.T) {
	store := newMemoryCache()
	svc := NewPreferenceService(store, time.Hour, nil)

	svc.PageSizeStore("user-2", history.ModeObservation).PageSizeChanged(100)

	size, err := svc.PageSize(context.Background(), "user-2", history.ModeObservation)
	require.NoError(t, err)
	assert.Equal(t, 100, size)
}

func TestPreferenceServiceSurfacesStoreFailures(t *testing.T) {
	boom := errors.New("redis down")
	svc := NewPreferenceService(failingStore{err: boom}, time.Hour, nil)

	_, err := svc.PageSize(context.Background(), "user-1", history.ModeProcess)
	require.ErrorIs(t, err, boom)

	assert.NotPanics(t, func() {
		svc.PageSizeStore("user-1", history.ModeProcess).PageSizeChanged(10)
	})
}
