package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgefit/coach-be/internal/api/handler"
	"github.com/forgefit/coach-be/internal/auth"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, verifier auth.Verifier) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "coach-api-service",
		})
	})

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes, all behind bearer auth
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(verifier))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a new generation job
			jobs.POST("", jobHandler.SubmitJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Poll job status and result
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		usage := v1.Group("/usage")
		{
			// GET /api/v1/usage/daily - Per-day token and credit totals
			usage.GET("/daily", jobHandler.DailyUsage)
		}
	}

	return r
}
