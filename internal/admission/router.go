package admission

import (
	"github.com/gin-gonic/gin"

	"tixly/internal/shared/middleware"
)

// SetupRoutes registers admission queue routes on the given router group
func SetupRoutes(router *gin.RouterGroup, ctrl Controller) {
	queue := router.Group("/queue")
	queue.Use(middleware.OptionalAuth())
	{
		queue.GET("/:queueId", ctrl.GetStatus)
		queue.POST("/:queueId/claim", ctrl.Claim)
		queue.POST("/:queueId/leave", ctrl.Leave)
	}
}
