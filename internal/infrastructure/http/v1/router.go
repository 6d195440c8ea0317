// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"templestock/internal/infrastructure/http/v1/handlers"
	"templestock/internal/infrastructure/http/v1/middleware"
	"templestock/pkg/logger"
)

// RoleStockAdmin may overwrite stored stock with the line total.
const RoleStockAdmin = "stock_admin"

// Engine is what the API needs from reconcile.Engine.
type Engine interface {
	handlers.MovementEngine
	handlers.StockAuditor
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Engine applies movement documents to stock
	Engine Engine

	// Products is the catalog service
	Products handlers.ProductService

	// HealthChecks are probed by GET /health; nil entries are skipped
	HealthChecks map[string]handlers.Checker

	// HealthStats are reported by GET /health/info
	HealthStats map[string]handlers.StatsFunc
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Global middleware (order matters!). Recovery sits inside ErrorHandler so
	// a recovered panic is still rendered as JSON.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks, cfg.HealthStats)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/info", healthHandler.Info)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	{
		registerMovementRoutes(v1, cfg)
		registerProductRoutes(v1, cfg)
	}

	return router
}

// registerMovementRoutes registers inward and outward document endpoints.
func registerMovementRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()

	inward := handlers.NewInwardHandler(baseHandler, cfg.Engine)
	inwards := rg.Group("/inwards")
	{
		inwards.POST("", inward.Create)
		inwards.GET("/:id", inward.Get)
		inwards.PUT("/:id", inward.Update)
		inwards.DELETE("/:id", inward.Delete)
		inwards.GET("/:id/history", inward.History)
	}

	outward := handlers.NewOutwardHandler(baseHandler, cfg.Engine)
	outwards := rg.Group("/outwards")
	{
		outwards.POST("", outward.Create)
		outwards.GET("/:id", outward.Get)
		outwards.PUT("/:id", outward.Update)
		outwards.DELETE("/:id", outward.Delete)
		outwards.GET("/:id/history", outward.History)
	}
}

// registerProductRoutes registers catalog and stock audit endpoints.
func registerProductRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	h := handlers.NewProductHandler(handlers.NewBaseHandler(), cfg.Products, cfg.Engine)

	products := rg.Group("/products")
	{
		products.POST("", h.Create)
		products.GET("/:id", h.Get)
		products.PUT("/:id", h.Update)
		products.GET("/:id/stock-check", h.StockCheck)
		products.POST("/:id/stock-repair", middleware.RequireRole(RoleStockAdmin), h.StockRepair)
	}
}
