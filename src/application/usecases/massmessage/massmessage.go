package massmessage

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-wa-campaign-api/src/application/usecases/recipients"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	massMessageRepo "go-wa-campaign-api/src/infrastructure/repository/database/massmessage"

	"go.uber.org/zap"
)

const promoteBatchSize = 100

// JobDispatcher runs claimed jobs. Dispatch must not block on the send loop.
type JobDispatcher interface {
	Dispatch(job *domainMassMessage.MassMessageJob) error
}

// CreateRequest is a mass-message submission
type CreateRequest struct {
	MessageType                 domainMassMessage.MessageType
	TemplateID                  *int
	CustomMessage               string
	Variables                   map[string]string
	TargetType                  domainMassMessage.TargetType
	TargetRefs                  domainMassMessage.TargetRefs
	InstanceID                  string
	SchedulingType              domainMassMessage.SchedulingType
	ScheduledFor                string
	Timezone                    string
	DelayBetweenGroupsSeconds   int
	DelayBetweenMessagesSeconds int
}

type Config struct {
	// NodeID identifies this process in job leases
	NodeID   string
	LeaseTTL time.Duration
}

// IMassMessageUseCase is the Dispatch Scheduler
type IMassMessageUseCase interface {
	Create(ctx context.Context, companyID int, request *CreateRequest) (*domainMassMessage.MassMessageJob, error)
	Cancel(ctx context.Context, companyID, jobID int) (*domainMassMessage.MassMessageJob, error)
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	ResumeStale(ctx context.Context, now time.Time) (int, error)
	GetProgress(ctx context.Context, companyID, jobID int) (*domainMassMessage.Progress, error)
	History(ctx context.Context, companyID, page, limit int) (*domainMassMessage.SearchResultJob, error)
}

type MassMessageUseCase struct {
	jobRepository      massMessageRepo.JobRepositoryInterface
	deliveryRepository massMessageRepo.DeliveryRepositoryInterface
	templateRepository massMessageRepo.TemplateRepositoryInterface
	resolver           recipients.IRecipientResolver
	dispatcher         JobDispatcher
	config             Config
	now                func() time.Time
	Logger             *logger.Logger
}

func NewMassMessageUseCase(
	jobRepository massMessageRepo.JobRepositoryInterface,
	deliveryRepository massMessageRepo.DeliveryRepositoryInterface,
	templateRepository massMessageRepo.TemplateRepositoryInterface,
	resolver recipients.IRecipientResolver,
	dispatcher JobDispatcher,
	config Config,
	loggerInstance *logger.Logger,
) IMassMessageUseCase {
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = 2 * time.Minute
	}
	return &MassMessageUseCase{
		jobRepository:      jobRepository,
		deliveryRepository: deliveryRepository,
		templateRepository: templateRepository,
		resolver:           resolver,
		dispatcher:         dispatcher,
		config:             config,
		now:                func() time.Time { return time.Now().UTC() },
		Logger:             loggerInstance,
	}
}

func validationError(msg string) error {
	return domainErrors.NewAppError(errors.New(msg), domainErrors.ValidationError)
}

func (uc *MassMessageUseCase) Create(ctx context.Context, companyID int, request *CreateRequest) (*domainMassMessage.MassMessageJob, error) {
	if strings.TrimSpace(request.InstanceID) == "" {
		return nil, validationError("instance is required")
	}
	if request.DelayBetweenGroupsSeconds < 0 || request.DelayBetweenMessagesSeconds < 0 {
		return nil, validationError("delays must not be negative")
	}

	message, err := uc.buildMessage(companyID, request)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	var scheduledFor *time.Time
	switch request.SchedulingType {
	case domainMassMessage.ScheduleImmediate:
	case domainMassMessage.ScheduleScheduled:
		at, err := ParseScheduledFor(request.ScheduledFor, request.Timezone, now)
		if err != nil {
			return nil, err
		}
		scheduledFor = &at
	default:
		return nil, validationError("scheduling type must be immediate or scheduled")
	}

	resolved, err := uc.resolver.Resolve(ctx, request.TargetType, request.TargetRefs, companyID)
	if err != nil {
		return nil, err
	}

	timezone := request.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	job, err := uc.jobRepository.CreateWithRecipients(&domainMassMessage.MassMessageJob{
		CompanyID:                   companyID,
		Message:                     message,
		Variables:                   request.Variables,
		TargetType:                  request.TargetType,
		TargetRefs:                  request.TargetRefs,
		InstanceID:                  request.InstanceID,
		SchedulingType:              request.SchedulingType,
		ScheduledFor:                scheduledFor,
		Timezone:                    timezone,
		DelayBetweenGroupsSeconds:   request.DelayBetweenGroupsSeconds,
		DelayBetweenMessagesSeconds: request.DelayBetweenMessagesSeconds,
		Status:                      domainMassMessage.StatusDraft,
		TotalRecipients:             len(resolved),
	}, resolved)
	if err != nil {
		return nil, err
	}

	if request.SchedulingType == domainMassMessage.ScheduleScheduled {
		if _, err := uc.jobRepository.Transition(job.ID, domainMassMessage.StatusDraft, domainMassMessage.StatusScheduled, nil); err != nil {
			return nil, err
		}
		job.Status = domainMassMessage.StatusScheduled
		uc.Logger.Info("Mass message job scheduled", zap.Int("jobID", job.ID), zap.Time("scheduledFor", *scheduledFor))
		return job, nil
	}

	if _, err := uc.claimAndDispatch(job, domainMassMessage.StatusDraft, now); err != nil {
		return nil, err
	}
	return job, nil
}

func (uc *MassMessageUseCase) buildMessage(companyID int, request *CreateRequest) (domainMassMessage.Message, error) {
	switch request.MessageType {
	case domainMassMessage.MessageCustom:
		if strings.TrimSpace(request.CustomMessage) == "" {
			return domainMassMessage.Message{}, validationError("message must not be empty")
		}
		return domainMassMessage.Message{Type: domainMassMessage.MessageCustom, Content: request.CustomMessage}, nil
	case domainMassMessage.MessageTemplate:
		if request.TemplateID == nil {
			return domainMassMessage.Message{}, validationError("template is required")
		}
		content, err := uc.templateRepository.GetContent(companyID, *request.TemplateID)
		if err != nil {
			return domainMassMessage.Message{}, err
		}
		if strings.TrimSpace(content) == "" {
			return domainMassMessage.Message{}, validationError("template content is empty")
		}
		return domainMassMessage.Message{Type: domainMassMessage.MessageTemplate, TemplateID: request.TemplateID, Content: content}, nil
	default:
		return domainMassMessage.Message{}, validationError("message type must be template or custom")
	}
}

// claimAndDispatch moves the job into processing and hands it to the dispatcher.
// A lost claim is not an error: another node owns the job.
func (uc *MassMessageUseCase) claimAndDispatch(job *domainMassMessage.MassMessageJob, from domainMassMessage.Status, now time.Time) (bool, error) {
	claimed, err := uc.jobRepository.Transition(job.ID, from, domainMassMessage.StatusProcessing, map[string]interface{}{
		"startedAt":   now,
		"claimedBy":   uc.config.NodeID,
		"heartbeatAt": now,
	})
	if err != nil || !claimed {
		return false, err
	}
	job.Status = domainMassMessage.StatusProcessing
	job.StartedAt = &now
	job.ClaimedBy = uc.config.NodeID
	job.HeartbeatAt = &now
	uc.handOff(job)
	return true, nil
}

// handOff never fails the caller: a job the dispatcher rejects stays processing
// and is picked up again once its lease goes stale.
func (uc *MassMessageUseCase) handOff(job *domainMassMessage.MassMessageJob) {
	if err := uc.dispatcher.Dispatch(job); err != nil {
		uc.Logger.Warn("Dispatcher rejected job", zap.Error(err), zap.Int("jobID", job.ID))
		return
	}
	uc.Logger.Info("Job handed to dispatcher", zap.Int("jobID", job.ID))
}

func (uc *MassMessageUseCase) Cancel(ctx context.Context, companyID, jobID int) (*domainMassMessage.MassMessageJob, error) {
	job, err := uc.jobRepository.GetForCompany(companyID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domainMassMessage.StatusScheduled {
		return nil, domainErrors.NewAppError(errors.New("only scheduled jobs can be cancelled"), domainErrors.InvalidTransition)
	}
	now := uc.now()
	cancelled, err := uc.jobRepository.Transition(job.ID, domainMassMessage.StatusScheduled, domainMassMessage.StatusCancelled,
		map[string]interface{}{"completedAt": now})
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, domainErrors.NewAppError(errors.New("job already started"), domainErrors.InvalidTransition)
	}
	job.Status = domainMassMessage.StatusCancelled
	job.CompletedAt = &now
	uc.Logger.Info("Mass message job cancelled", zap.Int("jobID", job.ID), zap.Int("companyID", companyID))
	return job, nil
}

// PromoteDue claims every scheduled job whose time has come and returns how many it claimed
func (uc *MassMessageUseCase) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	jobs, err := uc.jobRepository.ListDueScheduled(now, promoteBatchSize)
	if err != nil {
		return 0, err
	}
	promoted := 0
	for i := range *jobs {
		if ctx.Err() != nil {
			break
		}
		job := &(*jobs)[i]
		claimed, err := uc.claimAndDispatch(job, domainMassMessage.StatusScheduled, now)
		if err != nil {
			uc.Logger.Error("Promoting scheduled job failed", zap.Error(err), zap.Int("jobID", job.ID))
			continue
		}
		if claimed {
			promoted++
		}
	}
	if promoted > 0 {
		uc.Logger.Info("Scheduled jobs promoted", zap.Int("count", promoted))
	}
	return promoted, nil
}

// ResumeStale takes over processing jobs whose lease holder stopped heartbeating
func (uc *MassMessageUseCase) ResumeStale(ctx context.Context, now time.Time) (int, error) {
	staleBefore := now.Add(-uc.config.LeaseTTL)
	jobs, err := uc.jobRepository.ListStaleProcessing(staleBefore, promoteBatchSize)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for i := range *jobs {
		if ctx.Err() != nil {
			break
		}
		job := &(*jobs)[i]
		claimed, err := uc.jobRepository.ClaimLease(job.ID, uc.config.NodeID, staleBefore, now)
		if err != nil || !claimed {
			continue
		}
		job.ClaimedBy = uc.config.NodeID
		job.HeartbeatAt = &now
		resumed++
		uc.Logger.Warn("Resuming stale job", zap.Int("jobID", job.ID), zap.Int("sentCount", job.SentCount), zap.Int("total", job.TotalRecipients))
		uc.handOff(job)
	}
	return resumed, nil
}

func (uc *MassMessageUseCase) GetProgress(ctx context.Context, companyID, jobID int) (*domainMassMessage.Progress, error) {
	job, err := uc.jobRepository.GetForCompany(companyID, jobID)
	if err != nil {
		return nil, err
	}
	counts, err := uc.deliveryRepository.Counts(job.ID)
	if err != nil {
		return nil, err
	}
	deliveryErrors, err := uc.deliveryRepository.Errors(job.ID)
	if err != nil {
		return nil, err
	}
	return domainMassMessage.NewProgress(job, counts, deliveryErrors), nil
}

func (uc *MassMessageUseCase) History(ctx context.Context, companyID, page, limit int) (*domainMassMessage.SearchResultJob, error) {
	if limit > 100 {
		limit = 100
	}
	return uc.jobRepository.ListByCompany(companyID, page, limit)
}
