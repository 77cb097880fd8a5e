// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"tixly/internal/admission"
	"tixly/internal/checkout"
	"tixly/internal/events"
	"tixly/internal/inventory"
	"tixly/internal/shared/config"
	"tixly/internal/shared/database"
	"tixly/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config    *config.Config
	db        *database.DB
	holds     inventory.Service
	publisher checkout.FinalizationPublisher
	log       *logger.Logger

	eventRepo    events.Repository // shared by inventory and checkout wiring
	queueService admission.Service // shared between inventory and queue routes
}

// NewRouter creates a new router instance. The hold service and the
// finalization publisher are built in main because the sweeper and the
// finalizer share them.
func NewRouter(cfg *config.Config, db *database.DB, holds inventory.Service, publisher checkout.FinalizationPublisher, log *logger.Logger) *Router {
	return &Router{
		config:    cfg,
		db:        db,
		holds:     holds,
		publisher: publisher,
		log:       log,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	// API routes
	api := engine.Group(r.config.GetAPIBasePath())
	{
		// Event routes first: inventory and checkout reuse the event repository
		r.setupEventRoutes(api)

		// Hold routes build the admission service, queue routes reuse it
		r.setupHoldRoutes(api)
		r.setupQueueRoutes(api)

		r.setupCheckoutRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		// Perform health checks
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "tixly-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "tixly-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}

// setupEventRoutes configures event catalog routes
func (r *Router) setupEventRoutes(rg *gin.RouterGroup) {
	// Initialize event dependencies
	eventRepo := events.NewRepository(r.db.GetPostgreSQL())
	eventService := events.NewService(eventRepo)
	eventController := events.NewController(eventService)

	// Keep the repository for inventory snapshots and checkout pricing
	r.eventRepo = eventRepo

	events.SetupEventRoutes(rg, eventController)
}

// setupHoldRoutes configures hold lifecycle routes
func (r *Router) setupHoldRoutes(rg *gin.RouterGroup) {
	// The admission queue absorbs acquire attempts that fail on stock
	queueRepo := admission.NewRepository(r.db.GetRedisClient(), r.config.Queue.EntryTTL)
	queueService := admission.NewService(queueRepo, r.holds, r.config.Queue, r.log)
	r.queueService = queueService

	holdController := inventory.NewController(r.holds, admission.NewHoldOverflowGate(queueService), r.eventRepo)

	inventory.SetupHoldRoutes(rg, holdController)
}

// setupQueueRoutes configures admission queue routes
func (r *Router) setupQueueRoutes(rg *gin.RouterGroup) {
	queueController := admission.NewController(r.queueService)

	admission.SetupRoutes(rg, queueController)
}

// setupCheckoutRoutes configures checkout and order routes
func (r *Router) setupCheckoutRoutes(rg *gin.RouterGroup) {
	checkoutRepo := checkout.NewRepository(r.db.GetPostgreSQL())
	checkoutService := checkout.NewService(checkoutRepo, r.holds, r.eventRepo, r.publisher, r.config.Checkout, r.log)
	checkoutController := checkout.NewController(checkoutService)

	checkout.SetupRoutes(rg, checkoutController, r.config)
}
