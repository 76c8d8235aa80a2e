package campaign

import (
	"errors"
	"time"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GroupMembership is the database model binding a phone to one group of a campaign
type GroupMembership struct {
	ID         int       `gorm:"primaryKey"`
	CampaignID int       `gorm:"column:campaign_id;uniqueIndex:idx_campaign_phone"`
	GroupID    int       `gorm:"column:group_id;index"`
	Phone      string    `gorm:"column:phone;size:20;uniqueIndex:idx_campaign_phone"`
	Name       string    `gorm:"column:name;size:255"`
	JoinedAt   time.Time `gorm:"column:joined_at;autoCreateTime"`
}

func (GroupMembership) TableName() string {
	return "group_memberships"
}

type MembershipRepositoryInterface interface {
	GetByPhone(campaignID int, phone string) (*domainCampaign.GroupMembership, error)
	ListByCampaigns(campaignIDs []int) (*[]domainCampaign.GroupMembership, error)
}

type MembershipRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewMembershipRepository(db *gorm.DB, loggerInstance *logger.Logger) MembershipRepositoryInterface {
	return &MembershipRepository{DB: db, Logger: loggerInstance}
}

func (r *MembershipRepository) GetByPhone(campaignID int, phone string) (*domainCampaign.GroupMembership, error) {
	var membership GroupMembership
	err := r.DB.Where("campaign_id = ? AND phone = ?", campaignID, phone).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
		}
		r.Logger.Error("Error getting membership", zap.Error(err), zap.Int("campaignID", campaignID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return membership.toDomainMapper(), nil
}

// ListByCampaigns returns the members of the given campaigns ordered by campaign id,
// group number and join time.
func (r *MembershipRepository) ListByCampaigns(campaignIDs []int) (*[]domainCampaign.GroupMembership, error) {
	var memberships []GroupMembership
	if len(campaignIDs) == 0 {
		return &[]domainCampaign.GroupMembership{}, nil
	}
	err := r.DB.Table("group_memberships").
		Select("group_memberships.*").
		Joins("JOIN campaign_groups ON campaign_groups.id = group_memberships.group_id").
		Where("group_memberships.campaign_id IN ?", campaignIDs).
		Order("group_memberships.campaign_id, campaign_groups.group_number, group_memberships.joined_at, group_memberships.id").
		Find(&memberships).Error
	if err != nil {
		r.Logger.Error("Error listing campaign memberships", zap.Error(err), zap.Ints("campaignIDs", campaignIDs))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	out := make([]domainCampaign.GroupMembership, len(memberships))
	for i := range memberships {
		out[i] = *memberships[i].toDomainMapper()
	}
	return &out, nil
}

func (m *GroupMembership) toDomainMapper() *domainCampaign.GroupMembership {
	return &domainCampaign.GroupMembership{
		ID:         m.ID,
		CampaignID: m.CampaignID,
		GroupID:    m.GroupID,
		Phone:      m.Phone,
		Name:       m.Name,
		JoinedAt:   m.JoinedAt,
	}
}

func membershipFromDomainMapper(m *domainCampaign.GroupMembership) *GroupMembership {
	return &GroupMembership{
		ID:         m.ID,
		CampaignID: m.CampaignID,
		GroupID:    m.GroupID,
		Phone:      m.Phone,
		Name:       m.Name,
		JoinedAt:   m.JoinedAt,
	}
}
