package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings"
	"github.com/matthewjhunter/tidings/internal/storage"
)

// newRouter sets up the JSON API. Article URLs are passed as the trailing
// path, e.g. POST /summarize/https://www.example.com/news/1.
func newRouter(engine *tidings.Engine, cfg *storage.Config, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(recovery(logger))
	r.Use(requestID())
	r.Use(requestLogger(logger))
	r.Use(corsMiddleware(cfg.Web.AllowedOrigins))

	h := &handlers{engine: engine, cfg: cfg, logger: logger}
	admin := adminGuard(cfg.Web.AdminSecret)

	r.GET("/health", h.handleHealth)
	r.GET("/check", h.handleCheck)
	r.GET("/articles", h.handleArticles)
	r.GET("/latest", h.handleLatest)
	r.GET("/stats", h.handleStats)
	r.GET("/summaries", h.handleSummaries)
	r.GET("/summary/*url", h.handleSummary)

	r.POST("/summarize", h.handleSummarizeTop)
	r.POST("/summarize/*url", h.handleSummarize)
	r.POST("/regenerate/*url", admin, h.handleRegenerate)
	r.POST("/backfill", admin, h.handleBackfill)

	return r
}
