package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/api/handler"
	"github.com/cuongbtq/mediaqueue/internal/metrics"
	"github.com/gin-gonic/gin"
)

// HealthChecker is a backing service checked by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options configures the router beyond the handler dependencies.
type Options struct {
	AdminTokenHash string
	Health         map[string]HealthChecker
	// MaxUploadMemory bounds the multipart bytes kept in memory per request.
	MaxUploadMemory int64
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()
	if opts.MaxUploadMemory > 0 {
		r.MaxMultipartMemory = opts.MaxUploadMemory
	}

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(opts.Health))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	guildHandler := handler.NewGuildHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		v1.POST("/uploads/:category", jobHandler.UploadJob)
		v1.GET("/queues/:category", jobHandler.QueueDepth)

		guilds := v1.Group("/guilds/:guild_id", AdminAuth(opts.AdminTokenHash, deps.Logger))
		{
			guilds.PUT("/systems/:system", guildHandler.SetSystemChannel)
			guilds.DELETE("/systems/:system", guildHandler.RemoveSystemChannel)
			guilds.PUT("/limits", guildHandler.SetUploadLimit)
			guilds.PUT("/channels", guildHandler.SyncChannels)
		}

		admin := v1.Group("/admin", AdminAuth(opts.AdminTokenHash, deps.Logger))
		{
			admin.POST("/jobs/:job_id/requeue", jobHandler.RequeueJob)
		}
	}

	return r
}

func healthHandler(checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check.HealthCheck(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":   state,
			"service":  "media-api-service",
			"services": results,
		})
	}
}
