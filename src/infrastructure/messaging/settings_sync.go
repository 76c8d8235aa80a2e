package messaging

import (
	"context"
	"sync"
	"time"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	"go-wa-campaign-api/src/domain/gateway"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	campaignRepo "go-wa-campaign-api/src/infrastructure/repository/database/campaign"

	"go.uber.org/zap"
)

// settingsSyncStaleAfter is how long a running sync may go without progress
// before a new sync may take it over
const settingsSyncStaleAfter = 10 * time.Minute

// SettingsSyncer pushes a campaign's group settings to every one of its groups
// in the background, recording progress on the campaign row.
type SettingsSyncer struct {
	campaignRepository campaignRepo.CampaignRepositoryInterface
	gateway            gateway.IMessagingGateway
	gate               *InstanceGate
	Logger             *logger.Logger
	ctx                context.Context
	cancel             context.CancelFunc
	wg                 sync.WaitGroup
}

func NewSettingsSyncer(
	campaignRepository campaignRepo.CampaignRepositoryInterface,
	gatewayClient gateway.IMessagingGateway,
	gate *InstanceGate,
	loggerInstance *logger.Logger,
) *SettingsSyncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &SettingsSyncer{
		campaignRepository: campaignRepository,
		gateway:            gatewayClient,
		gate:               gate,
		Logger:             loggerInstance,
		ctx:                ctx,
		cancel:             cancel,
	}
}

// Start marks the sync running and returns; InvalidTransition when one is already running
func (s *SettingsSyncer) Start(campaign *domainCampaign.Campaign, groups []domainCampaign.CampaignGroup) error {
	staleBefore := time.Now().UTC().Add(-settingsSyncStaleAfter)
	if err := s.campaignRepository.StartSettingsSync(campaign.ID, len(groups), staleBefore); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(campaign, groups)
	}()
	return nil
}

func (s *SettingsSyncer) run(campaign *domainCampaign.Campaign, groups []domainCampaign.CampaignGroup) {
	onlyAdmins := campaign.OnlyAdminsSend
	description := campaign.GroupDescription
	settings := gateway.GroupSettings{OnlyAdminsSend: &onlyAdmins, Description: &description}
	if campaign.GroupImageURL != "" {
		image := campaign.GroupImageURL
		settings.ImageURL = &image
	}

	failed := 0
	for _, group := range groups {
		err := s.gate.Do(s.ctx, campaign.InstanceID, func(ctx context.Context) error {
			return s.gateway.UpdateGroupSettings(ctx, campaign.InstanceID, group.ExternalGroupID, settings)
		})
		if err != nil {
			failed++
			s.Logger.Warn("Error updating group settings", zap.Error(err),
				zap.Int("campaignID", campaign.ID), zap.Int("groupID", group.ID))
		}
		// a sync cut short stays running until it goes stale
		if s.ctx.Err() != nil {
			s.Logger.Warn("Group settings sync interrupted", zap.Int("campaignID", campaign.ID))
			return
		}
		if err := s.campaignRepository.RecordSettingsSync(campaign.ID, err != nil); err != nil {
			s.Logger.Error("Error recording settings sync progress", zap.Error(err), zap.Int("campaignID", campaign.ID))
		}
	}

	if err := s.campaignRepository.FinishSettingsSync(campaign.ID); err != nil {
		s.Logger.Error("Error finishing settings sync", zap.Error(err), zap.Int("campaignID", campaign.ID))
		return
	}
	s.Logger.Info("Group settings sync finished", zap.Int("campaignID", campaign.ID),
		zap.Int("groups", len(groups)), zap.Int("failed", failed))
}

// Wait blocks until every sync started so far has finished
func (s *SettingsSyncer) Wait() {
	s.wg.Wait()
}

func (s *SettingsSyncer) Shutdown() {
	s.cancel()
	s.wg.Wait()
}
