package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/market-value-forecast/internal/api/handlers"
	"github.com/stitts-dev/market-value-forecast/internal/api/middleware"
)

// Handlers groups everything the router serves.
type Handlers struct {
	Projection *handlers.ProjectionHandler
	GrowthCap  *handlers.GrowthCapHandler
	Health     *handlers.HealthHandler

	// RunLimiter throttles run creation; nil disables it.
	RunLimiter *rate.Limiter
}

// NewRouter builds the gin engine with middleware, probes, metrics and the v1 API.
func NewRouter(h Handlers, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))

	router.GET("/health", h.Health.GetHealth)
	router.GET("/ready", h.Health.GetReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	SetupRoutes(router.Group("/api/v1"), h)
	return router
}

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, h Handlers) {
	group.POST("/projections", middleware.RateLimit(h.RunLimiter), h.Projection.CreateProjection)
	group.GET("/projections/:id", h.Projection.GetProjection)
	group.POST("/growth-cap", h.GrowthCap.ApplyGrowthCap)
}
