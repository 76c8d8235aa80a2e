package campaign

import (
	"errors"
	"io"
	"net/http"

	campaignUseCase "go-wa-campaign-api/src/application/usecases/campaign"
	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	"go-wa-campaign-api/src/domain/common"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	"go-wa-campaign-api/src/infrastructure/rest/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type ICampaignController interface {
	UpdateStatus(ctx *gin.Context)
	ListGroups(ctx *gin.Context)
	SyncSettings(ctx *gin.Context)
	UpdateProgress(ctx *gin.Context)
	DistributorQRCode(ctx *gin.Context)
	UploadGroupImage(ctx *gin.Context)
	PublicSummary(ctx *gin.Context)
	Register(ctx *gin.Context)
}

type CampaignController struct {
	commonService   common.CommonService
	campaignUseCase campaignUseCase.ICampaignUseCase
	maxUploadBytes  int64
	Logger          *logger.Logger
}

func NewCampaignController(
	commonService common.CommonService,
	campaignUseCase campaignUseCase.ICampaignUseCase,
	maxUploadBytes int64,
	loggerInstance *logger.Logger,
) ICampaignController {
	return &CampaignController{
		commonService:   commonService,
		campaignUseCase: campaignUseCase,
		maxUploadBytes:  maxUploadBytes,
		Logger:          loggerInstance,
	}
}

func (c *CampaignController) bindID(ctx *gin.Context) (int, bool) {
	var request IDRequest
	if err := ctx.ShouldBindUri(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign ID"})
		return 0, false
	}
	return request.ID, true
}

func (c *CampaignController) bindJSON(ctx *gin.Context, request interface{}) bool {
	if err := ctx.ShouldBindJSON(request); err != nil {
		c.Logger.Warn("Couldn't process request - invalid request", zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.commonService.AppendValidationErrors(ctx, ve, request)
			return false
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	return true
}

func (c *CampaignController) UpdateStatus(ctx *gin.Context) {
	id, ok := c.bindID(ctx)
	if !ok {
		return
	}
	var request UpdateStatusRequest
	if !c.bindJSON(ctx, &request) {
		return
	}
	campaign, err := c.campaignUseCase.UpdateStatus(ctx.Request.Context(), middlewares.CompanyID(ctx), id, domainCampaign.Status(request.Status))
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, domainToResponseMapper(campaign))
}

func (c *CampaignController) ListGroups(ctx *gin.Context) {
	id, ok := c.bindID(ctx)
	if !ok {
		return
	}
	groups, err := c.campaignUseCase.ListGroups(ctx.Request.Context(), middlewares.CompanyID(ctx), id)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": groupsToResponseMapper(groups)})
}

func (c *CampaignController) SyncSettings(ctx *gin.Context) {
	id, ok := c.bindID(ctx)
	if !ok {
		return
	}
	if err := c.campaignUseCase.SyncSettings(ctx.Request.Context(), middlewares.CompanyID(ctx), id); err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"message": "Group settings update started"})
}

func (c *CampaignController) UpdateProgress(ctx *gin.Context) {
	id, ok := c.bindID(ctx)
	if !ok {
		return
	}
	progress, err := c.campaignUseCase.SettingsProgress(ctx.Request.Context(), middlewares.CompanyID(ctx), id)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, SettingsProgressResponse{
		Status:             string(progress.Status),
		ProcessedCount:     progress.ProcessedCount,
		TotalCount:         progress.TotalCount,
		FailedCount:        progress.FailedCount,
		ProgressPercentage: progress.ProgressPercentage,
	})
}

func (c *CampaignController) DistributorQRCode(ctx *gin.Context) {
	id, ok := c.bindID(ctx)
	if !ok {
		return
	}
	png, err := c.campaignUseCase.DistributorQRCode(ctx.Request.Context(), middlewares.CompanyID(ctx), id)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

func (c *CampaignController) UploadGroupImage(ctx *gin.Context) {
	id, ok := c.bindID(ctx)
	if !ok {
		return
	}
	header, err := ctx.FormFile("image")
	if err != nil {
		_ = ctx.Error(domainErrors.NewAppError(errors.New("multipart field image is required"), domainErrors.ValidationError))
		return
	}
	if c.maxUploadBytes > 0 && header.Size > c.maxUploadBytes {
		_ = ctx.Error(domainErrors.NewAppError(errors.New("image is too large"), domainErrors.ValidationError))
		return
	}
	file, err := header.Open()
	if err != nil {
		c.Logger.Error("Error opening uploaded file", zap.Error(err))
		_ = ctx.Error(domainErrors.NewAppErrorWithType(domainErrors.UnknownError))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.Logger.Error("Error reading uploaded file", zap.Error(err))
		_ = ctx.Error(domainErrors.NewAppErrorWithType(domainErrors.UnknownError))
		return
	}

	campaign, err := c.campaignUseCase.SetGroupImage(ctx.Request.Context(), middlewares.CompanyID(ctx), id, data)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	c.Logger.Info("Group image uploaded", zap.Int("campaignID", id), zap.Int64("bytes", header.Size))
	ctx.JSON(http.StatusOK, domainToResponseMapper(campaign))
}

func (c *CampaignController) PublicSummary(ctx *gin.Context) {
	var request SlugRequest
	if err := ctx.ShouldBindUri(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign link"})
		return
	}
	summary, err := c.campaignUseCase.PublicSummary(ctx.Request.Context(), request.Slug)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, summaryToResponseMapper(summary))
}

func (c *CampaignController) Register(ctx *gin.Context) {
	var uri SlugRequest
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign link"})
		return
	}
	var request RegisterRequest
	if !c.bindJSON(ctx, &request) {
		return
	}
	registration, err := c.campaignUseCase.RegisterBySlug(ctx.Request.Context(), uri.Slug, request.Phone, request.Name)
	if err != nil {
		c.Logger.Warn("Registration failed", zap.Error(err), zap.String("slug", uri.Slug))
		_ = ctx.Error(err)
		return
	}
	status := http.StatusCreated
	if registration.AlreadyRegistered {
		status = http.StatusOK
	}
	ctx.JSON(status, RegisterResponse{
		GroupID:           registration.GroupID,
		GroupNumber:       registration.GroupNumber,
		InviteLink:        registration.InviteLink,
		AlreadyRegistered: registration.AlreadyRegistered,
	})
}
