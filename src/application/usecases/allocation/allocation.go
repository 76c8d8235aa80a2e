package allocation

import (
	"context"
	"errors"
	"time"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	domainContact "go-wa-campaign-api/src/domain/contact"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainGateway "go-wa-campaign-api/src/domain/gateway"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	campaignRepo "go-wa-campaign-api/src/infrastructure/repository/database/campaign"

	uuid "github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// CreationMarker serializes group creation per campaign across processes
type CreationMarker interface {
	Acquire(ctx context.Context, campaignID int, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, campaignID int, token string) error
}

// SummaryInvalidator drops cached public summaries after membership changes
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, slug string)
}

type Config struct {
	Attempts  int
	MarkerTTL time.Duration
	// Backoff is the base wait after losing a race; it grows linearly per attempt up to maxBackoff.
	Backoff time.Duration
}

const maxBackoff = 500 * time.Millisecond

// IAllocationUseCase assigns registrants to campaign groups without ever
// exceeding a group's capacity.
type IAllocationUseCase interface {
	RegisterContact(ctx context.Context, campaignID int, phone, name string) (*domainCampaign.Registration, error)
}

type AllocationUseCase struct {
	campaignRepository   campaignRepo.CampaignRepositoryInterface
	groupRepository      campaignRepo.GroupRepositoryInterface
	membershipRepository campaignRepo.MembershipRepositoryInterface
	gateway              domainGateway.IMessagingGateway
	marker               CreationMarker
	summaries            SummaryInvalidator
	config               Config
	Logger               *logger.Logger
}

func NewAllocationUseCase(
	campaignRepository campaignRepo.CampaignRepositoryInterface,
	groupRepository campaignRepo.GroupRepositoryInterface,
	membershipRepository campaignRepo.MembershipRepositoryInterface,
	gateway domainGateway.IMessagingGateway,
	marker CreationMarker,
	summaries SummaryInvalidator,
	config Config,
	loggerInstance *logger.Logger,
) IAllocationUseCase {
	if config.Attempts <= 0 {
		config.Attempts = 50
	}
	if config.MarkerTTL <= 0 {
		config.MarkerTTL = time.Minute
	}
	return &AllocationUseCase{
		campaignRepository:   campaignRepository,
		groupRepository:      groupRepository,
		membershipRepository: membershipRepository,
		gateway:              gateway,
		marker:               marker,
		summaries:            summaries,
		config:               config,
		Logger:               loggerInstance,
	}
}

func (uc *AllocationUseCase) RegisterContact(ctx context.Context, campaignID int, phone, name string) (*domainCampaign.Registration, error) {
	normalized := domainContact.NormalizePhone(phone)
	if normalized == "" {
		return nil, domainErrors.NewAppError(errors.New("invalid phone number"), domainErrors.ValidationError)
	}

	campaign, err := uc.campaignRepository.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.AcceptsRegistrations() {
		return nil, domainErrors.NewAppError(errors.New("campaign is not accepting registrations"), domainErrors.ValidationError)
	}
	if campaign.MaxMembersPerGroup < 1 {
		uc.Logger.Error("Campaign has no group capacity configured", zap.Int("campaignID", campaignID), zap.Int("maxMembersPerGroup", campaign.MaxMembersPerGroup))
		return nil, domainErrors.NewAppError(errors.New("campaign max members per group must be positive"), domainErrors.ValidationError)
	}

	if registration, err := uc.existingRegistration(campaignID, normalized); err != nil || registration != nil {
		return registration, err
	}

	log := uc.Logger.With(zap.Int("campaignID", campaignID), zap.String("phone", normalized))
	for attempt := 0; attempt < uc.config.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			break
		}

		groups, err := uc.groupRepository.ListByCampaign(campaignID)
		if err != nil {
			return nil, err
		}

		open := domainCampaign.HighestOpenGroup(*groups)
		if open == nil {
			if !campaign.AutoCreateNewGroups {
				log.Info("Campaign is full and auto creation is disabled")
				return nil, domainErrors.NewAppErrorWithType(domainErrors.CapacityExceeded)
			}
			created, err := uc.createNextGroup(ctx, campaign)
			if err != nil {
				return nil, err
			}
			if !created {
				uc.backoff(ctx, attempt)
			}
			continue
		}

		membership, err := uc.groupRepository.ReserveSeat(open.ID, &domainCampaign.GroupMembership{
			CampaignID: campaignID,
			Phone:      normalized,
			Name:       name,
		})
		switch {
		case err == nil:
			return uc.joinExternalGroup(ctx, campaign, open, membership)
		case domainErrors.IsType(err, domainErrors.ConcurrencyConflict):
			log.Debug("Lost the race for the last seat, retrying", zap.Int("groupID", open.ID), zap.Int("attempt", attempt))
			uc.backoff(ctx, attempt)
		case domainErrors.IsType(err, domainErrors.DuplicateRegistration):
			return uc.existingRegistration(campaignID, normalized)
		default:
			return nil, err
		}
	}

	log.Warn("Allocation attempts exhausted")
	return nil, domainErrors.NewAppErrorWithType(domainErrors.ConcurrencyConflict)
}

func (uc *AllocationUseCase) existingRegistration(campaignID int, phone string) (*domainCampaign.Registration, error) {
	membership, err := uc.membershipRepository.GetByPhone(campaignID, phone)
	if err != nil {
		if domainErrors.IsType(err, domainErrors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	group, err := uc.groupRepository.GetByID(membership.GroupID)
	if err != nil {
		return nil, err
	}
	return &domainCampaign.Registration{
		GroupID:           group.ID,
		GroupNumber:       group.GroupNumber,
		InviteLink:        group.InviteLink,
		AlreadyRegistered: true,
	}, nil
}

// joinExternalGroup adds the member to the WhatsApp group after its seat is
// committed, giving the seat back if the gateway refuses.
func (uc *AllocationUseCase) joinExternalGroup(ctx context.Context, campaign *domainCampaign.Campaign, group *domainCampaign.CampaignGroup, membership *domainCampaign.GroupMembership) (*domainCampaign.Registration, error) {
	if err := uc.gateway.AddMember(ctx, campaign.InstanceID, group.ExternalGroupID, membership.Phone); err != nil {
		uc.Logger.Warn("Adding member to external group failed, releasing seat",
			zap.Error(err), zap.Int("campaignID", campaign.ID), zap.Int("groupID", group.ID), zap.String("phone", membership.Phone))
		if releaseErr := uc.groupRepository.ReleaseSeat(membership.ID, group.ID); releaseErr != nil {
			uc.Logger.Error("Releasing seat failed", zap.Error(releaseErr), zap.Int("groupID", group.ID), zap.Int("membershipID", membership.ID))
		}
		return nil, domainErrors.NewAppErrorWithType(domainErrors.ExternalGroupCreationError)
	}

	if uc.summaries != nil {
		uc.summaries.Invalidate(ctx, campaign.DistributorSlug)
	}
	uc.Logger.Info("Contact registered",
		zap.Int("campaignID", campaign.ID), zap.Int("groupID", group.ID), zap.Int("groupNumber", group.GroupNumber), zap.String("phone", membership.Phone))
	return &domainCampaign.Registration{
		GroupID:     group.ID,
		GroupNumber: group.GroupNumber,
		InviteLink:  group.InviteLink,
	}, nil
}

// createNextGroup opens group max+1 while holding the campaign's creation marker.
// It reports false when another request holds the marker.
func (uc *AllocationUseCase) createNextGroup(ctx context.Context, campaign *domainCampaign.Campaign) (bool, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return false, domainErrors.NewAppError(err, domainErrors.UnknownError)
	}
	acquired, err := uc.marker.Acquire(ctx, campaign.ID, token.String(), uc.config.MarkerTTL)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if err := uc.marker.Release(context.Background(), campaign.ID, token.String()); err != nil {
			uc.Logger.Warn("Releasing creation marker failed", zap.Error(err), zap.Int("campaignID", campaign.ID))
		}
	}()

	groups, err := uc.groupRepository.ListByCampaign(campaign.ID)
	if err != nil {
		return false, err
	}
	if domainCampaign.HighestOpenGroup(*groups) != nil {
		return true, nil
	}

	number := domainCampaign.NextGroupNumber(*groups)
	created, err := uc.gateway.CreateGroup(ctx, campaign.InstanceID, domainGateway.GroupSpec{
		Name:           campaign.GroupName(number),
		Description:    campaign.GroupDescription,
		ImageURL:       campaign.GroupImageURL,
		OnlyAdminsSend: campaign.OnlyAdminsSend,
	})
	if err != nil {
		uc.Logger.Error("Creating external group failed", zap.Error(err), zap.Int("campaignID", campaign.ID), zap.Int("groupNumber", number))
		return false, domainErrors.NewAppErrorWithType(domainErrors.ExternalGroupCreationError)
	}

	_, err = uc.groupRepository.Create(&domainCampaign.CampaignGroup{
		CampaignID:      campaign.ID,
		GroupNumber:     number,
		ExternalGroupID: created.ExternalGroupID,
		InviteLink:      created.InviteLink,
		Capacity:        campaign.MaxMembersPerGroup,
	})
	if err != nil {
		if domainErrors.IsType(err, domainErrors.ConcurrencyConflict) {
			uc.Logger.Warn("Group number taken after marker expiry, external group left unused",
				zap.Int("campaignID", campaign.ID), zap.Int("groupNumber", number), zap.String("externalGroupID", created.ExternalGroupID))
			return true, nil
		}
		return false, err
	}
	return true, nil
}

func (uc *AllocationUseCase) backoff(ctx context.Context, attempt int) {
	if uc.config.Backoff <= 0 {
		return
	}
	wait := uc.config.Backoff * time.Duration(attempt+1)
	if wait > maxBackoff {
		wait = maxBackoff
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
