package di

import (
	"fmt"
	"os"
	"time"

	"go-wa-campaign-api/src/application/usecases/allocation"
	campaignUseCase "go-wa-campaign-api/src/application/usecases/campaign"
	massMessageUseCase "go-wa-campaign-api/src/application/usecases/massmessage"
	"go-wa-campaign-api/src/application/usecases/recipients"
	"go-wa-campaign-api/src/domain/common"
	domainGateway "go-wa-campaign-api/src/domain/gateway"
	"go-wa-campaign-api/src/infrastructure/config"
	"go-wa-campaign-api/src/infrastructure/helper"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	"go-wa-campaign-api/src/infrastructure/messaging"
	"go-wa-campaign-api/src/infrastructure/repository/database"
	campaignRepo "go-wa-campaign-api/src/infrastructure/repository/database/campaign"
	contactRepo "go-wa-campaign-api/src/infrastructure/repository/database/contact"
	massMessageRepo "go-wa-campaign-api/src/infrastructure/repository/database/massmessage"
	gatewayClient "go-wa-campaign-api/src/infrastructure/repository/gateway-client"
	"go-wa-campaign-api/src/infrastructure/repository/media"
	redisRepo "go-wa-campaign-api/src/infrastructure/repository/redis"
	campaignController "go-wa-campaign-api/src/infrastructure/rest/controllers/campaign"
	massMessageController "go-wa-campaign-api/src/infrastructure/rest/controllers/massmessage"
	mediaController "go-wa-campaign-api/src/infrastructure/rest/controllers/media"

	uuid "github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApplicationContext holds all application dependencies and services
type ApplicationContext struct {
	Config                *config.Config
	DB                    *gorm.DB
	Redis                 *redis.Client
	Logger                *logger.Logger
	CommonService         common.CommonService
	Gateway               domainGateway.IMessagingGateway
	CampaignRepository    campaignRepo.CampaignRepositoryInterface
	GroupRepository       campaignRepo.GroupRepositoryInterface
	JobRepository         massMessageRepo.JobRepositoryInterface
	DeliveryRepository    massMessageRepo.DeliveryRepositoryInterface
	Dispatcher            *messaging.Dispatcher
	Promoter              *messaging.Promoter
	SettingsSyncer        *messaging.SettingsSyncer
	MediaStore            *media.Store
	AllocationUseCase     allocation.IAllocationUseCase
	CampaignUseCase       campaignUseCase.ICampaignUseCase
	MassMessageUseCase    massMessageUseCase.IMassMessageUseCase
	CampaignController    campaignController.ICampaignController
	MassMessageController massMessageController.IMassMessageController
	MediaController       mediaController.IMediaController
}

// NodeID names this process in job leases
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	id, err := uuid.NewV4()
	if err != nil {
		return host
	}
	return fmt.Sprintf("%s-%s", host, id.String()[:8])
}

// SetupDependencies creates a new application context with all dependencies
func SetupDependencies(cfg *config.Config, loggerInstance *logger.Logger) (*ApplicationContext, error) {
	db, err := database.InitDB(cfg.Database, loggerInstance)
	if err != nil {
		return nil, err
	}

	redisClient, err := redisRepo.NewClient(cfg.Redis)
	if err != nil {
		return nil, err
	}

	registry, err := gatewayClient.LoadInstanceRegistry(cfg.Gateway.InstancesFile)
	if err != nil {
		return nil, err
	}
	loggerInstance.Info("Gateway instances loaded", zap.Int("count", len(registry.Instances)))
	gateway := gatewayClient.NewGatewayClient(cfg.Gateway.BaseURL, registry, cfg.Gateway.RequestTimeout, loggerInstance)

	return wire(cfg, db, redisClient, gateway, loggerInstance)
}

// wire builds everything above the database, cache and gateway connections
func wire(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, gateway domainGateway.IMessagingGateway, loggerInstance *logger.Logger) (*ApplicationContext, error) {
	validator := helper.NewValidator(loggerInstance)
	commonService := common.NewCommonService(validator)

	// Repositories
	campaignRepository := campaignRepo.NewCampaignRepository(db, loggerInstance)
	groupRepository := campaignRepo.NewGroupRepository(db, loggerInstance)
	membershipRepository := campaignRepo.NewMembershipRepository(db, loggerInstance)
	contactRepository := contactRepo.NewContactRepository(db, loggerInstance)
	jobRepository := massMessageRepo.NewJobRepository(db, loggerInstance)
	deliveryRepository := massMessageRepo.NewDeliveryRepository(db, loggerInstance)
	templateRepository := massMessageRepo.NewTemplateRepository(db, loggerInstance)

	var (
		marker      allocation.CreationMarker
		invalidator allocation.SummaryInvalidator
		summaries   campaignUseCase.SummaryCache
	)
	if redisClient != nil {
		cache := redisRepo.NewSummaryCache(redisClient, loggerInstance, cfg.Dispatch.SummaryCacheTTL)
		marker = redisRepo.NewCreationMarker(redisClient, loggerInstance)
		invalidator = cache
		summaries = cache
		loggerInstance.Info("Using redis for group creation markers and summary cache")
	} else {
		marker = campaignRepo.NewCreationMarkerRepository(db, loggerInstance)
		loggerInstance.Info("Redis not configured, using database creation markers")
	}

	// Messaging
	gate := messaging.NewInstanceGate(cfg.Dispatch.MinSendInterval)
	notifier := messaging.NewWebhookNotifier(cfg.Webhook.CompletionURL, loggerInstance)
	dispatcher := messaging.NewDispatcher(
		jobRepository,
		deliveryRepository,
		gateway,
		gate,
		notifier,
		messaging.DispatcherConfig{
			Workers:           cfg.Dispatch.Workers,
			QueueSize:         cfg.Dispatch.QueueSize,
			HeartbeatInterval: cfg.Dispatch.LeaseTTL / 4,
		},
		loggerInstance,
	)
	settingsSyncer := messaging.NewSettingsSyncer(campaignRepository, gateway, gate, loggerInstance)
	mediaStore := media.NewStore(cfg.Media.Dir, cfg.Media.MaxUploadBytes, loggerInstance)

	// Use cases
	resolver := recipients.NewRecipientResolver(contactRepository, campaignRepository, membershipRepository, loggerInstance)
	massMessageUC := massMessageUseCase.NewMassMessageUseCase(
		jobRepository,
		deliveryRepository,
		templateRepository,
		resolver,
		dispatcher,
		massMessageUseCase.Config{NodeID: NodeID(), LeaseTTL: cfg.Dispatch.LeaseTTL},
		loggerInstance,
	)
	promoter, err := messaging.NewPromoter(massMessageUC, cfg.Dispatch.PromoterSchedule, loggerInstance)
	if err != nil {
		return nil, err
	}
	allocationUC := allocation.NewAllocationUseCase(
		campaignRepository,
		groupRepository,
		membershipRepository,
		gateway,
		marker,
		invalidator,
		allocation.Config{
			Attempts:  cfg.Dispatch.AllocationAttempts,
			MarkerTTL: cfg.Dispatch.CreationMarkerTTL,
			Backoff:   20 * time.Millisecond,
		},
		loggerInstance,
	)
	campaignUC := campaignUseCase.NewCampaignUseCase(
		campaignRepository,
		groupRepository,
		allocationUC,
		summaries,
		settingsSyncer,
		mediaStore,
		cfg.Server.PublicBaseURL,
		loggerInstance,
	)

	// Controllers
	campaignCtrl := campaignController.NewCampaignController(commonService, campaignUC, cfg.Media.MaxUploadBytes, loggerInstance)
	massMessageCtrl := massMessageController.NewMassMessageController(commonService, massMessageUC, loggerInstance)
	mediaCtrl := mediaController.NewMediaController(mediaStore, loggerInstance)

	return &ApplicationContext{
		Config:                cfg,
		DB:                    db,
		Redis:                 redisClient,
		Logger:                loggerInstance,
		CommonService:         commonService,
		Gateway:               gateway,
		CampaignRepository:    campaignRepository,
		GroupRepository:       groupRepository,
		JobRepository:         jobRepository,
		DeliveryRepository:    deliveryRepository,
		Dispatcher:            dispatcher,
		Promoter:              promoter,
		SettingsSyncer:        settingsSyncer,
		MediaStore:            mediaStore,
		AllocationUseCase:     allocationUC,
		CampaignUseCase:       campaignUC,
		MassMessageUseCase:    massMessageUC,
		CampaignController:    campaignCtrl,
		MassMessageController: massMessageCtrl,
		MediaController:       mediaCtrl,
	}, nil
}

// Start launches the dispatch workers and the scheduled-job promoter
func (a *ApplicationContext) Start() {
	a.Dispatcher.Start()
	a.Promoter.Start()
}

// Shutdown stops background work and closes connections. Jobs still
// processing keep their lease and are resumed by another node once it expires.
func (a *ApplicationContext) Shutdown() {
	a.Promoter.Stop()
	a.SettingsSyncer.Shutdown()
	a.Dispatcher.Shutdown()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Error closing redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Warn("Error closing database", zap.Error(err))
			}
		}
	}
}

// NewTestApplicationContext wires the application over an already opened
// database, an optional redis client and a gateway double.
func NewTestApplicationContext(
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	gateway domainGateway.IMessagingGateway,
	loggerInstance *logger.Logger,
) (*ApplicationContext, error) {
	return wire(cfg, db, redisClient, gateway, loggerInstance)
}
