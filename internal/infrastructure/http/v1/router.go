// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"comanda/internal/infrastructure/http/v1/handlers"
	"comanda/internal/infrastructure/http/v1/middleware"
	"comanda/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Emitter runs the emission pipeline
	Emitter handlers.Emitter

	// Sales reads the fiscal state of sales
	Sales handlers.SaleReader

	// JWTValidator enables bearer auth when set; a token scopes the caller to its company
	JWTValidator middleware.JWTValidator

	// RequireAuth rejects requests without a token (only with JWTValidator)
	RequireAuth bool

	// RateLimiter limits emission requests per company or client IP; nil disables it
	RateLimiter *middleware.RateLimiter

	// HealthChecks run on the readiness probe
	HealthChecks map[string]handlers.Check
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	emissionHandler := handlers.NewEmissionHandler(handlers.NewBaseHandler(), cfg.Emitter, cfg.Sales)

	protected := router.Group("")
	if cfg.JWTValidator != nil {
		if cfg.RequireAuth {
			protected.Use(middleware.Auth(cfg.JWTValidator))
		} else {
			protected.Use(middleware.OptionalAuth(cfg.JWTValidator))
		}
	}
	if cfg.RateLimiter != nil {
		protected.Use(middleware.RateLimit(cfg.RateLimiter))
	}

	protected.POST("/emit", emissionHandler.Emit)

	fiscal := protected.Group("/api/v1/fiscal")
	{
		fiscal.POST("/sales/:id/emit", emissionHandler.EmitSale)
		fiscal.GET("/sales/:id", emissionHandler.GetSale)
	}

	return router
}
