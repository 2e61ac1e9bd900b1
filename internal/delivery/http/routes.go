package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seo401b/new-Allert/config"
)

// MetricsRecorder observes requests and serves the collected metrics
type MetricsRecorder interface {
	RequestObserver
	Handler() http.Handler
}

// SetupRouter creates and configures the Gin router. recorder may be nil.
func SetupRouter(cfg *config.Config, handler *Handler, logger *slog.Logger, recorder MetricsRecorder) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	// Multipart bodies past this spill to disk until the handler reads them
	if cfg.Server.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	}

	// Global middleware
	router.Use(RequestIDMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	if recorder != nil {
		router.Use(MetricsMiddleware(recorder))
	}
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/", handler.Root)
	router.GET("/health", handler.HealthCheck)
	if recorder != nil {
		router.GET("/metrics", gin.WrapH(recorder.Handler()))
	}

	// Root level upload route kept for existing clients
	router.POST("/analyze-image", handler.AnalyzeImage)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/analyze-image", handler.AnalyzeImage)
		v1.POST("/analyze-image/base64", handler.AnalyzeImageBase64)
	}

	return router
}
