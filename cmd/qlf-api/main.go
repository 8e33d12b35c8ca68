package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/qlf-monitor-api/api/swagger"
	"github.com/noah-isme/qlf-monitor-api/internal/handler"
	"github.com/noah-isme/qlf-monitor-api/internal/repository"
	"github.com/noah-isme/qlf-monitor-api/internal/service"
	"github.com/noah-isme/qlf-monitor-api/pkg/cache"
	"github.com/noah-isme/qlf-monitor-api/pkg/config"
	"github.com/noah-isme/qlf-monitor-api/pkg/database"
	"github.com/noah-isme/qlf-monitor-api/pkg/export"
	"github.com/noah-isme/qlf-monitor-api/pkg/logger"
	"github.com/noah-isme/qlf-monitor-api/pkg/storage"
)

// @title QLF Monitor API
// @version 0.1.0
// @description Exposure and processing history grids of the quick look framework
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, cfg.Redis.KeyNamespace, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, service.CacheConfig{Enabled: cfg.History.CacheEnabled, TTL: cfg.History.CacheTTL}, metrics, logr)

	exposures := repository.NewExposureRepository(db)
	processes := repository.NewProcessRepository(db)
	comments := repository.NewCommentRepository(db)

	historySvc := service.NewHistoryService(exposures, processes, cacheSvc, metrics, cfg.History.CacheTTL, logr)
	preferenceSvc := service.NewPreferenceService(cacheRepo, cfg.Preferences.TTL, logr)
	commentSvc := service.NewCommentService(comments, processes, validator.New(), logr)
	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret}, logr)

	previewStore, err := storage.NewLocalStorage(cfg.Previews.StorageDir)
	if err != nil {
		return fmt.Errorf("preview storage: %w", err)
	}
	previewSigner := storage.NewSignedURLSigner(cfg.Previews.SignedURLSecret, cfg.Previews.SignedURLTTL)
	previewSvc := service.NewPreviewService(previewStore, previewSigner, cfg.APIPrefix, logr)
	navigationSvc := service.NewNavigationService(cfg.History.QALinkBase, previewSvc)

	fetchQueue := service.NewFetchQueue(cfg.History.FetchWorkers, cfg.History.FetchQueueSize, logr)
	if err := metrics.WatchQueue("fetch", fetchQueue.Pending); err != nil {
		return fmt.Errorf("fetch queue metrics: %w", err)
	}
	// Workers outlive the signal; shutdown stops them after the server drains.
	fetchQueue.Start(context.Background())
	defer fetchQueue.Stop()

	gridSvc := service.NewGridService(service.GridDependencies{
		Source:      historySvc,
		Preferences: preferenceSvc,
		Navigator:   navigationSvc,
		Comments:    commentSvc,
		Dispatcher:  service.NewFetchDispatcher(fetchQueue),
		Metrics:     metrics,
	}, service.GridConfig{
		DefaultPageSize:  cfg.History.DefaultPageSize,
		MaxPageSize:      cfg.History.MaxPageSize,
		DefaultRangeDays: cfg.History.DefaultRangeDays,
		SessionTTL:       cfg.History.SessionTTL,
		FetchTimeout:     cfg.History.FetchTimeout,
		Location:         cfg.History.Location(),
	}, logr)
	defer gridSvc.Shutdown()

	var (
		exportSvc   *service.ExportService
		fileHandler *handler.FileHandler
	)
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			return fmt.Errorf("export storage: %w", err)
		}
		exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(exportStore, exportSigner, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr,
			export.NewCSVExporter(), export.NewPDFExporter())
		fileHandler = handler.NewFileHandler(gridSvc, exportSvc, previewSvc)
	} else {
		fileHandler = handler.NewFileHandler(gridSvc, nil, previewSvc)
	}

	health := handler.NewHealthHandler(metrics, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis":    cacheRepo.Ping,
	})

	router := newRouter(cfg, logr, routes{
		metrics:  metrics,
		tokens:   tokenSvc,
		health:   health,
		grids:    handler.NewGridHandler(gridSvc),
		comments: handler.NewCommentHandler(gridSvc),
		files:    fileHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(logr, srv, gridSvc, shutdownTimeout)
	})
	g.Go(func() error {
		return gridSvc.RunJanitor(gctx, cfg.History.SessionTTL/2)
	})
	if exportSvc != nil {
		g.Go(func() error {
			return exportSvc.RunCleanup(gctx, cfg.Exports.CleanupInterval)
		})
	}
	return g.Wait()
}

type gridCloser interface {
	Shutdown()
}

// shutdown closes every grid session first so handlers parked on a fetch
// return, then drains the HTTP server.
func shutdown(logr *zap.Logger, srv *http.Server, grids gridCloser, timeout time.Duration) error {
	logr.Info("server shutting down")
	grids.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
