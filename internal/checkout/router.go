package checkout

import (
	"github.com/gin-gonic/gin"

	"tixly/internal/shared/config"
	"tixly/internal/shared/middleware"
)

// SetupRoutes registers checkout and order routes on the given router group
func SetupRoutes(router *gin.RouterGroup, ctrl Controller, cfg *config.Config) {
	// Checkout accepts anonymous buyers, auth only adds attribution
	router.POST("/checkout", middleware.OptionalAuthWithConfig(cfg), ctrl.Checkout)

	orders := router.Group("/orders")
	orders.Use(middleware.JWTAuthWithConfig(cfg))
	{
		orders.GET("", ctrl.GetUserOrders)
		orders.GET("/:orderId", ctrl.GetOrder)
	}
}
