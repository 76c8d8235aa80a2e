package routes

import (
	campaignController "go-wa-campaign-api/src/infrastructure/rest/controllers/campaign"

	"github.com/gin-gonic/gin"
)

func CampaignRoutes(router *gin.RouterGroup, controller campaignController.ICampaignController, auth gin.HandlerFunc) {
	public := router.Group("/campaigns/public")
	{
		public.GET("/:slug", controller.PublicSummary)
		public.POST("/:slug/register", controller.Register)
	}

	campaignRoute := router.Group("/campaigns")
	campaignRoute.Use(auth)
	{
		campaignRoute.PATCH("/:id/status", controller.UpdateStatus)
		campaignRoute.GET("/:id/groups", controller.ListGroups)
		campaignRoute.POST("/:id/groups/sync-settings", controller.SyncSettings)
		campaignRoute.GET("/:id/update-progress", controller.UpdateProgress)
		campaignRoute.GET("/:id/distributor-qrcode", controller.DistributorQRCode)
		campaignRoute.PUT("/:id/group-image", controller.UploadGroupImage)
	}
}
