package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-wa-campaign-api/src/application/usecases/allocation"
	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	campaignRepo "go-wa-campaign-api/src/infrastructure/repository/database/campaign"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const qrCodeSize = 512

// SummaryCache stores public capacity summaries by distributor slug
type SummaryCache interface {
	Get(ctx context.Context, slug string) (*domainCampaign.Summary, bool)
	Set(ctx context.Context, slug string, summary *domainCampaign.Summary)
	Invalidate(ctx context.Context, slug string)
}

// SettingsSyncer applies campaign group settings to every group in the background
type SettingsSyncer interface {
	Start(campaign *domainCampaign.Campaign, groups []domainCampaign.CampaignGroup) error
}

// ImageStore persists uploaded images and returns their relative path
type ImageStore interface {
	SaveImage(name string, data []byte) (string, error)
}

type ICampaignUseCase interface {
	UpdateStatus(ctx context.Context, companyID, id int, status domainCampaign.Status) (*domainCampaign.Campaign, error)
	ListGroups(ctx context.Context, companyID, id int) (*[]domainCampaign.CampaignGroup, error)
	PublicSummary(ctx context.Context, slug string) (*domainCampaign.Summary, error)
	RegisterBySlug(ctx context.Context, slug, phone, name string) (*domainCampaign.Registration, error)
	SyncSettings(ctx context.Context, companyID, id int) error
	SettingsProgress(ctx context.Context, companyID, id int) (*domainCampaign.SettingsProgress, error)
	DistributorQRCode(ctx context.Context, companyID, id int) ([]byte, error)
	SetGroupImage(ctx context.Context, companyID, id int, data []byte) (*domainCampaign.Campaign, error)
}

type CampaignUseCase struct {
	campaignRepository campaignRepo.CampaignRepositoryInterface
	groupRepository    campaignRepo.GroupRepositoryInterface
	allocator          allocation.IAllocationUseCase
	summaries          SummaryCache
	syncer             SettingsSyncer
	images             ImageStore
	publicBaseURL      string
	Logger             *logger.Logger
}

func NewCampaignUseCase(
	campaignRepository campaignRepo.CampaignRepositoryInterface,
	groupRepository campaignRepo.GroupRepositoryInterface,
	allocator allocation.IAllocationUseCase,
	summaries SummaryCache,
	syncer SettingsSyncer,
	images ImageStore,
	publicBaseURL string,
	loggerInstance *logger.Logger,
) ICampaignUseCase {
	return &CampaignUseCase{
		campaignRepository: campaignRepository,
		groupRepository:    groupRepository,
		allocator:          allocator,
		summaries:          summaries,
		syncer:             syncer,
		images:             images,
		publicBaseURL:      strings.TrimRight(publicBaseURL, "/"),
		Logger:             loggerInstance,
	}
}

func (uc *CampaignUseCase) invalidate(ctx context.Context, slug string) {
	if uc.summaries != nil && slug != "" {
		uc.summaries.Invalidate(ctx, slug)
	}
}

// UpdateStatus moves a campaign along its lifecycle. Archiving keeps the groups.
func (uc *CampaignUseCase) UpdateStatus(ctx context.Context, companyID, id int, status domainCampaign.Status) (*domainCampaign.Campaign, error) {
	if !status.IsValid() {
		return nil, domainErrors.NewAppError(fmt.Errorf("unknown campaign status %q", status), domainErrors.ValidationError)
	}
	campaign, err := uc.campaignRepository.GetForCompany(companyID, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == status {
		return campaign, nil
	}
	if !domainCampaign.CanTransition(campaign.Status, status) {
		return nil, domainErrors.NewAppError(
			fmt.Errorf("campaign cannot move from %s to %s", campaign.Status, status), domainErrors.InvalidTransition)
	}
	if err := uc.campaignRepository.UpdateStatus(id, campaign.Status, status); err != nil {
		return nil, err
	}
	uc.invalidate(ctx, campaign.DistributorSlug)
	uc.Logger.Info("Campaign status updated", zap.Int("campaignID", id),
		zap.String("from", string(campaign.Status)), zap.String("to", string(status)))
	campaign.Status = status
	return campaign, nil
}

func (uc *CampaignUseCase) ListGroups(ctx context.Context, companyID, id int) (*[]domainCampaign.CampaignGroup, error) {
	if _, err := uc.campaignRepository.GetForCompany(companyID, id); err != nil {
		return nil, err
	}
	return uc.groupRepository.ListByCampaign(id)
}

func (uc *CampaignUseCase) PublicSummary(ctx context.Context, slug string) (*domainCampaign.Summary, error) {
	if uc.summaries != nil {
		if summary, ok := uc.summaries.Get(ctx, slug); ok {
			return summary, nil
		}
	}
	campaign, err := uc.campaignRepository.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	groups, err := uc.groupRepository.ListByCampaign(campaign.ID)
	if err != nil {
		return nil, err
	}
	summary := domainCampaign.Summarize(campaign, *groups)
	if uc.summaries != nil {
		uc.summaries.Set(ctx, slug, &summary)
	}
	return &summary, nil
}

func (uc *CampaignUseCase) RegisterBySlug(ctx context.Context, slug, phone, name string) (*domainCampaign.Registration, error) {
	campaign, err := uc.campaignRepository.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	return uc.allocator.RegisterContact(ctx, campaign.ID, phone, name)
}

func (uc *CampaignUseCase) SyncSettings(ctx context.Context, companyID, id int) error {
	campaign, err := uc.campaignRepository.GetForCompany(companyID, id)
	if err != nil {
		return err
	}
	groups, err := uc.groupRepository.ListByCampaign(id)
	if err != nil {
		return err
	}
	if len(*groups) == 0 {
		return domainErrors.NewAppError(errors.New("campaign has no groups to update"), domainErrors.ValidationError)
	}
	if err := uc.syncer.Start(campaign, *groups); err != nil {
		return err
	}
	uc.Logger.Info("Group settings sync started", zap.Int("campaignID", id), zap.Int("groups", len(*groups)))
	return nil
}

func (uc *CampaignUseCase) SettingsProgress(ctx context.Context, companyID, id int) (*domainCampaign.SettingsProgress, error) {
	campaign, err := uc.campaignRepository.GetForCompany(companyID, id)
	if err != nil {
		return nil, err
	}
	progress := campaign.SettingsProgress()
	return &progress, nil
}

// PublicURL is the registration page a distributor QR code points at
func (uc *CampaignUseCase) PublicURL(slug string) string {
	return uc.publicBaseURL + "/v1/campaigns/public/" + slug
}

func (uc *CampaignUseCase) DistributorQRCode(ctx context.Context, companyID, id int) ([]byte, error) {
	campaign, err := uc.campaignRepository.GetForCompany(companyID, id)
	if err != nil {
		return nil, err
	}
	if campaign.DistributorSlug == "" {
		return nil, domainErrors.NewAppError(errors.New("campaign has no distributor link"), domainErrors.ValidationError)
	}
	png, err := qrcode.Encode(uc.PublicURL(campaign.DistributorSlug), qrcode.Medium, qrCodeSize)
	if err != nil {
		uc.Logger.Error("Error encoding QR code", zap.Error(err), zap.Int("campaignID", id))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.UnknownError)
	}
	return png, nil
}

// SetGroupImage stores the image used for new groups and for the next settings sync
func (uc *CampaignUseCase) SetGroupImage(ctx context.Context, companyID, id int, data []byte) (*domainCampaign.Campaign, error) {
	if _, err := uc.campaignRepository.GetForCompany(companyID, id); err != nil {
		return nil, err
	}
	relative, err := uc.images.SaveImage(fmt.Sprintf("campaigns/%d/group-image", id), data)
	if err != nil {
		return nil, err
	}
	return uc.campaignRepository.Update(id, map[string]interface{}{
		"groupImageUrl": uc.publicBaseURL + "/v1/media/" + relative,
	})
}
