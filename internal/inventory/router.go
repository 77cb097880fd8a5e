package inventory

import (
	"tixly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupHoldRoutes(router *gin.RouterGroup, controller Controller) {
	// Holds carry optional auth: anonymous buyers are allowed, but a bearer
	// token attributes the hold to a user.
	holds := router.Group("/holds")
	holds.Use(middleware.OptionalAuth())
	{
		holds.POST("", controller.AcquireHold)                 // POST /api/v1/holds - Acquire or queue
		holds.GET("/:token", controller.GetHold)               // GET /api/v1/holds/:token - Hold status
		holds.POST("/:token/release", controller.ReleaseHold)  // POST /api/v1/holds/:token/release - Cancel hold
		holds.POST("/:token/extend", controller.ExtendHold)    // POST /api/v1/holds/:token/extend - Push deadline out
	}

	// Live availability snapshot
	router.GET("/inventory/:eventId", controller.GetEventInventory) // GET /api/v1/inventory/:eventId
}
