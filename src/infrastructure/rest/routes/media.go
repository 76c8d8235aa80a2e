package routes

import (
	mediaController "go-wa-campaign-api/src/infrastructure/rest/controllers/media"

	"github.com/gin-gonic/gin"
)

func MediaRoutes(router *gin.RouterGroup, controller mediaController.IMediaController) {
	router.GET("/media/*path", controller.Get)
}
