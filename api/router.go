package api

import (
	"log/slog"

	"clipstitch/config"
	"clipstitch/job"

	"github.com/gin-gonic/gin"
)

func SetupRouter(s Stitcher, jobs *job.Manager, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RecoveryMiddleware(logger), LoggingMiddleware(logger))
	h := NewHandler(s, jobs, cfg, logger)

	// Health check
	health := func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	}
	r.GET("/health", health)
	r.GET("/healthz", health)

	auth := AuthMiddleware(cfg, logger)
	r.POST("/stitch", auth, h.handleStitch)

	v1 := r.Group("/api/v1")
	v1.Use(auth)
	{
		v1.POST("/stitch", h.handleStitch)
		v1.GET("/jobs", h.handleListJobs)
		v1.GET("/jobs/:jobId", h.handleGetJob)
		v1.PATCH("/jobs/:jobId/cancel", h.handleCancelJob)
	}
	return r
}
