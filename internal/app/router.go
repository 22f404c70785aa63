package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"tripsync/internal/handler"
	"tripsync/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler  *handler.TripHandler
	OrderHandler *handler.OrderHandler
	RedisClient  *redis.Client
	NewRelicApp  *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.Idempotency(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Active trip routes.
		trip := v1.Group("/trip")
		{
			trip.GET("", deps.TripHandler.Get)
			trip.POST("", deps.TripHandler.Accept)
			trip.POST("/status", deps.TripHandler.ChangeStatus)
			trip.POST("/metrics", deps.TripHandler.Metrics)
			trip.POST("/location", deps.TripHandler.Location)
			trip.POST("/finish", deps.TripHandler.Finish)
		}

		// Order cache and sync queue routes.
		orders := v1.Group("/orders")
		{
			orders.GET("", deps.OrderHandler.List)
			orders.GET("/active", deps.OrderHandler.GetActive)
			orders.GET("/:id", deps.OrderHandler.Get)
			orders.POST("/sync", deps.OrderHandler.SyncAll)
			orders.POST("/:id", deps.OrderHandler.Update)
			orders.POST("/:id/sync", deps.OrderHandler.SyncOne)
			orders.DELETE("/:id", deps.OrderHandler.Delete)
		}
	}

	return router
}
