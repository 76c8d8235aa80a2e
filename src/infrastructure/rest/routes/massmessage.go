package routes

import (
	massMessageController "go-wa-campaign-api/src/infrastructure/rest/controllers/massmessage"

	"github.com/gin-gonic/gin"
)

func MassMessageRoutes(router *gin.RouterGroup, controller massMessageController.IMassMessageController, auth gin.HandlerFunc) {
	massMessageRoute := router.Group("/mass-messaging")
	massMessageRoute.Use(auth)
	{
		massMessageRoute.POST("/create", controller.Create)
		massMessageRoute.GET("/history", controller.History)
		massMessageRoute.GET("/:id/progress", controller.Progress)
		massMessageRoute.POST("/:id/cancel", controller.Cancel)
	}
}
