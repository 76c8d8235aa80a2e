package routes

import (
	"net/http"

	"go-wa-campaign-api/src/infrastructure/di"
	"go-wa-campaign-api/src/infrastructure/rest/middlewares"

	"github.com/gin-gonic/gin"
)

func ApplicationRouter(router *gin.Engine, appContext *di.ApplicationContext) {
	v1 := router.Group("/v1")

	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Service is running",
		})
	})

	auth := middlewares.AuthJWTMiddleware(appContext.Config.JWT.AccessSecret, appContext.Logger)

	CampaignRoutes(v1, appContext.CampaignController, auth)
	MassMessageRoutes(v1, appContext.MassMessageController, auth)
	MediaRoutes(v1, appContext.MediaController)
}
