package massmessage

import (
	"errors"
	"net/http"

	massMessageUseCase "go-wa-campaign-api/src/application/usecases/massmessage"
	"go-wa-campaign-api/src/domain/common"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	"go-wa-campaign-api/src/infrastructure/rest/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type IMassMessageController interface {
	Create(ctx *gin.Context)
	History(ctx *gin.Context)
	Progress(ctx *gin.Context)
	Cancel(ctx *gin.Context)
}

type MassMessageController struct {
	commonService      common.CommonService
	massMessageUseCase massMessageUseCase.IMassMessageUseCase
	Logger             *logger.Logger
}

func NewMassMessageController(
	commonService common.CommonService,
	massMessageUseCase massMessageUseCase.IMassMessageUseCase,
	loggerInstance *logger.Logger,
) IMassMessageController {
	return &MassMessageController{
		commonService:      commonService,
		massMessageUseCase: massMessageUseCase,
		Logger:             loggerInstance,
	}
}

// targetRefs reads either an id array or a raw phone list
func targetRefs(targetType domainMassMessage.TargetType, raw []byte) (domainMassMessage.TargetRefs, error) {
	value := gjson.ParseBytes(raw)
	if targetType == domainMassMessage.TargetManual {
		if value.Type != gjson.String {
			return domainMassMessage.TargetRefs{}, errors.New("targetRefs must be a phone list string for manual targets")
		}
		return domainMassMessage.TargetRefs{Raw: value.String()}, nil
	}
	if !value.IsArray() {
		return domainMassMessage.TargetRefs{}, errors.New("targetRefs must be an array of ids")
	}
	var ids []int
	for _, item := range value.Array() {
		if item.Type != gjson.Number || item.Int() <= 0 {
			return domainMassMessage.TargetRefs{}, errors.New("targetRefs must contain positive ids")
		}
		ids = append(ids, int(item.Int()))
	}
	return domainMassMessage.TargetRefs{IDs: ids}, nil
}

func (c *MassMessageController) Create(ctx *gin.Context) {
	var request CreateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		c.Logger.Warn("Couldn't process request - invalid request", zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.commonService.AppendValidationErrors(ctx, ve, request)
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	targetType := domainMassMessage.TargetType(request.TargetType)
	refs, err := targetRefs(targetType, request.TargetRefs)
	if err != nil {
		_ = ctx.Error(domainErrors.NewAppError(err, domainErrors.ValidationError))
		return
	}

	companyID := middlewares.CompanyID(ctx)
	job, err := c.massMessageUseCase.Create(ctx.Request.Context(), companyID, &massMessageUseCase.CreateRequest{
		MessageType:                 domainMassMessage.MessageType(request.MessageType),
		TemplateID:                  request.TemplateID,
		CustomMessage:               request.CustomMessage,
		Variables:                   request.Variables,
		TargetType:                  targetType,
		TargetRefs:                  refs,
		InstanceID:                  request.InstanceID,
		SchedulingType:              domainMassMessage.SchedulingType(request.SchedulingType),
		ScheduledFor:                request.ScheduledFor,
		Timezone:                    request.Timezone,
		DelayBetweenGroupsSeconds:   request.DelayBetweenGroups,
		DelayBetweenMessagesSeconds: request.DelayBetweenMessages,
	})
	if err != nil {
		c.Logger.Warn("Error creating mass message job", zap.Error(err), zap.Int("companyID", companyID))
		_ = ctx.Error(err)
		return
	}

	c.Logger.Info("Mass message job created",
		zap.Int("companyID", companyID),
		zap.Int("jobID", job.ID),
		zap.Int("totalRecipients", job.TotalRecipients))
	ctx.JSON(http.StatusCreated, domainToResponseMapper(job))
}

func (c *MassMessageController) History(ctx *gin.Context) {
	var request HistoryRequest
	if err := ctx.ShouldBindQuery(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pagination parameters"})
		return
	}
	result, err := c.massMessageUseCase.History(ctx.Request.Context(), middlewares.CompanyID(ctx), request.Page, request.Limit)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, historyToResponseMapper(result))
}

func (c *MassMessageController) Progress(ctx *gin.Context) {
	var request JobIDRequest
	if err := ctx.ShouldBindUri(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}
	progress, err := c.massMessageUseCase.GetProgress(ctx.Request.Context(), middlewares.CompanyID(ctx), request.ID)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, progressToResponseMapper(progress))
}

func (c *MassMessageController) Cancel(ctx *gin.Context) {
	var request JobIDRequest
	if err := ctx.ShouldBindUri(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}
	job, err := c.massMessageUseCase.Cancel(ctx.Request.Context(), middlewares.CompanyID(ctx), request.ID)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	c.Logger.Info("Mass message job cancelled", zap.Int("jobID", job.ID))
	ctx.JSON(http.StatusOK, domainToResponseMapper(job))
}
