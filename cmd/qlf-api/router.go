package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/qlf-monitor-api/internal/handler"
	"github.com/noah-isme/qlf-monitor-api/internal/middleware"
	"github.com/noah-isme/qlf-monitor-api/internal/models"
	"github.com/noah-isme/qlf-monitor-api/internal/service"
	"github.com/noah-isme/qlf-monitor-api/pkg/config"
	"github.com/noah-isme/qlf-monitor-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/qlf-monitor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/qlf-monitor-api/pkg/middleware/requestid"
)

type routes struct {
	metrics  *service.MetricsService
	tokens   middleware.TokenValidator
	health   *handler.HealthHandler
	grids    *handler.GridHandler
	comments *handler.CommentHandler
	files    *handler.FileHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", h.health.Health)
	r.GET("/ready", h.health.Ready)
	r.GET("/metrics", h.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/exports/:token", h.files.DownloadExport)
	api.GET("/previews/:token", h.files.DownloadPreview)

	grids := api.Group("/history/grids", middleware.JWT(h.tokens))
	grids.POST("", h.grids.Mount)
	grids.GET("/:id", h.grids.Get)
	grids.DELETE("/:id", h.grids.Unmount)
	grids.PUT("/:id/sort", h.grids.Sort)
	grids.PUT("/:id/filter", h.grids.Filter)
	grids.PUT("/:id/page", h.grids.Page)
	grids.PUT("/:id/page-size", h.grids.PageSize)
	grids.PUT("/:id/date-range", h.grids.DateRange)
	grids.POST("/:id/refresh", h.grids.Refresh)
	grids.POST("/:id/columns/:name/toggle", h.grids.ToggleColumn)
	grids.POST("/:id/columns/show-all", h.grids.ShowAllColumns)
	grids.POST("/:id/columns/hide-all", h.grids.HideAllColumns)
	grids.PUT("/:id/selection", h.grids.Select)
	grids.GET("/:id/rows/:index/qa", h.grids.QALink)
	grids.GET("/:id/rows/:index/preview", h.grids.PreviewLink)

	grids.POST("/:id/comments/dialog", h.comments.Open)
	grids.DELETE("/:id/comments/dialog", h.comments.Close)
	grids.GET("/:id/comments", h.comments.List)
	grids.POST("/:id/comments", middleware.RequireRoles(models.RoleAdmin, models.RoleOperator), h.comments.Create)

	grids.POST("/:id/exports", h.files.Export)

	return r
}
