package worker

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgefit/coach-be/shared/postgresql"
)

// SetupRouter configures the worker service's internal HTTP surface.
func SetupRouter(h *Handler, db *postgresql.Client, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			logger.Error("Health check failed",
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "coach-worker-service",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "coach-worker-service",
		})
	})

	internal := r.Group("/internal")
	{
		internal.POST("/jobs/run", h.Run)
	}

	return r
}
