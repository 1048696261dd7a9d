package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/sitestack/api/handlers"
	"github.com/customeros/sitestack/api/middleware"
	"github.com/customeros/sitestack/config"
	"github.com/customeros/sitestack/internal/logger"
	"github.com/customeros/sitestack/internal/ratelimit"
	"github.com/customeros/sitestack/internal/tracing"
	"github.com/customeros/sitestack/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, cfg *config.Config, log logger.Logger) {
	if s == nil {
		panic("Services cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	apiHandlers := handlers.InitHandlers(s.DomainService)

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.HostingPlatform))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: cfg.AppConfig.APIKey,
	})

	verifyLimiter := ratelimit.NewLimiter(
		ratelimit.NewMemoryStore(),
		cfg.RateLimitConfig.VerifyLimit,
		cfg.RateLimitConfig.VerifyWindow,
	)

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware("sitestack"))
	api.Use(middleware.TracingMiddleware())
	{
		domains := api.Group("/domains")
		{
			domains.POST("", apiHandlers.Domains.CreateDomain())
			domains.GET("/:id", apiHandlers.Domains.GetDomain())
			domains.DELETE("/:id", apiHandlers.Domains.RemoveDomain())
			domains.POST("/:id/verify",
				middleware.RateLimitMiddleware(verifyLimiter, middleware.DomainKey("verify"), log),
				apiHandlers.Domains.VerifyDomain(),
			)
			domains.PUT("/:id/www", apiHandlers.Domains.SetIncludeWWW())
			domains.GET("/:id/logs", apiHandlers.Domains.GetOperationLogs())
		}

		projects := api.Group("/projects")
		{
			projects.GET("/:projectId/domains", apiHandlers.Domains.ListProjectDomains())
		}
	}
}
