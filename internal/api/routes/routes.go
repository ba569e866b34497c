// Package routes assembles the gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/api/handlers"
	"github.com/dust-service/dust_service/internal/api/middleware"
	"github.com/dust-service/dust_service/internal/domain/services/consolidation"
	"github.com/dust-service/dust_service/internal/infrastructure/cache"
)

// SetupRoutes configures all application routes
func SetupRoutes(engine *consolidation.Engine, store cache.Store, logger *zap.Logger, environment string) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	h := handlers.NewConsolidationHandlers(engine, store, logger)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1/consolidation")
	{
		v1.POST("/quote", h.Quote)
		v1.POST("/execute", h.Execute)
		v1.POST("/simulate", h.Simulate)
		v1.GET("/status/:id", h.Status)
		v1.GET("/history", h.History)
		v1.GET("/plan/:id", h.Plan)
		v1.GET("/job/:id", h.JobData)
	}

	return router
}
