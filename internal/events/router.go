package events

import (
	"tixly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupEventRoutes(router *gin.RouterGroup, controller Controller) {
	// Public routes - anyone can browse the catalog
	publicEvents := router.Group("/events")
	{
		publicEvents.GET("", controller.GetAllEvents)                       // GET /api/v1/events - Browse all events
		publicEvents.GET("/:eventId", controller.GetEvent)                  // GET /api/v1/events/:eventId - Get event details
		publicEvents.GET("/:eventId/categories", controller.GetCategories) // GET /api/v1/events/:eventId/categories - List ticket categories
	}

	// Admin routes - catalog management
	adminEvents := router.Group("/admin/events")
	adminEvents.Use(middleware.JWTAuth(), middleware.RequireAdmin())
	{
		adminEvents.POST("", controller.CreateEvent)                        // POST /api/v1/admin/events - Create event
		adminEvents.POST("/:eventId/publish", controller.PublishEvent)      // POST /api/v1/admin/events/:eventId/publish - Open sales
		adminEvents.POST("/:eventId/categories", controller.AddCategory)    // POST /api/v1/admin/events/:eventId/categories - Add ticket category
	}
}
