package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qlf-monitor-api/internal/history"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
)

type preferenceStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// PreferenceService persists per-user grid preferences in Redis. It writes to
// the cache repository directly so preferences survive HISTORY_CACHE_ENABLED=false.
type PreferenceService struct {
	store  preferenceStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(store preferenceStore, ttl time.Duration, logger *zap.Logger) *PreferenceService {
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{store: store, ttl: ttl, logger: logger}
}

func pageSizeKey(userID string, mode history.GridMode) string {
	return fmt.Sprintf("history:pagesize:%s:%s", userID, mode)
}

// PageSize returns the stored page size of a user for a grid mode, or zero
// when none is stored.
func (s *PreferenceService) PageSize(ctx context.Context, userID string, mode history.GridMode) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	var size int
	if err := s.store.Get(ctx, pageSizeKey(userID, mode), &size); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return 0, nil
		}
		return 0, err
	}
	if size < 0 {
		return 0, nil
	}
	return size, nil
}

// SetPageSize stores the page size of a user for a grid mode.
func (s *PreferenceService) SetPageSize(ctx context.Context, userID string, mode history.GridMode, size int) error {
	if s.store == nil {
		return nil
	}
	if size <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "page size must be positive")
	}
	return s.store.Set(ctx, pageSizeKey(userID, mode), size, s.ttl)
}

// PageSizeStore binds the service to one user and mode for a grid controller.
func (s *PreferenceService) PageSizeStore(userID string, mode history.GridMode) history.PageSizeStore {
	return &pageSizeRecorder{svc: s, userID: userID, mode: mode}
}

type pageSizeRecorder struct {
	svc    *PreferenceService
	userID string
	mode   history.GridMode
}

// PageSizeChanged implements history.PageSizeStore. Failures are logged; the
// grid keeps working with the new size either way.
func (r *pageSizeRecorder) PageSizeChanged(size int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.svc.SetPageSize(ctx, r.userID, r.mode, size); err != nil {
		r.svc.logger.Warn("page size preference not saved",
			zap.String("user_id", r.userID),
			zap.String("mode", string(r.mode)),
			zap.Int("size", size),
			zap.Error(err))
	}
}
