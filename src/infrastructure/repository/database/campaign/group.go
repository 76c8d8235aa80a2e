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

// CampaignGroup is the database model for the WhatsApp groups of a campaign
type CampaignGroup struct {
	ID              int       `gorm:"primaryKey"`
	CampaignID      int       `gorm:"column:campaign_id;uniqueIndex:idx_campaign_group_number"`
	GroupNumber     int       `gorm:"column:group_number;uniqueIndex:idx_campaign_group_number"`
	ExternalGroupID string    `gorm:"column:external_group_id;size:120"`
	InviteLink      string    `gorm:"column:invite_link;size:500"`
	MemberCount     int       `gorm:"column:member_count;default:0"`
	Capacity        int       `gorm:"column:capacity"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (CampaignGroup) TableName() string {
	return "campaign_groups"
}

var errGroupFull = errors.New("group is full")

// GroupRepositoryInterface defines the group persistence operations, including the
// atomic seat reservation used by the allocator.
type GroupRepositoryInterface interface {
	ListByCampaign(campaignID int) (*[]domainCampaign.CampaignGroup, error)
	GetByID(id int) (*domainCampaign.CampaignGroup, error)
	Create(group *domainCampaign.CampaignGroup) (*domainCampaign.CampaignGroup, error)
	ReserveSeat(groupID int, membership *domainCampaign.GroupMembership) (*domainCampaign.GroupMembership, error)
	ReleaseSeat(membershipID, groupID int) error
}

type GroupRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewGroupRepository(db *gorm.DB, loggerInstance *logger.Logger) GroupRepositoryInterface {
	return &GroupRepository{DB: db, Logger: loggerInstance}
}

func (r *GroupRepository) ListByCampaign(campaignID int) (*[]domainCampaign.CampaignGroup, error) {
	var groups []CampaignGroup
	if err := r.DB.Where("campaign_id = ?", campaignID).Order("group_number ASC").Find(&groups).Error; err != nil {
		r.Logger.Error("Error listing campaign groups", zap.Error(err), zap.Int("campaignID", campaignID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	out := make([]domainCampaign.CampaignGroup, len(groups))
	for i := range groups {
		out[i] = *groups[i].toDomainMapper()
	}
	return &out, nil
}

func (r *GroupRepository) GetByID(id int) (*domainCampaign.CampaignGroup, error) {
	var group CampaignGroup
	if err := r.DB.Where("id = ?", id).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
		}
		r.Logger.Error("Error getting campaign group", zap.Error(err), zap.Int("groupID", id))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return group.toDomainMapper(), nil
}

// Create inserts a new group. A concurrent insert of the same group number
// surfaces as ConcurrencyConflict.
func (r *GroupRepository) Create(group *domainCampaign.CampaignGroup) (*domainCampaign.CampaignGroup, error) {
	model := groupFromDomainMapper(group)
	if err := r.DB.Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			r.Logger.Warn("Group number already taken", zap.Int("campaignID", group.CampaignID), zap.Int("groupNumber", group.GroupNumber))
			return nil, domainErrors.NewAppErrorWithType(domainErrors.ConcurrencyConflict)
		}
		r.Logger.Error("Error creating campaign group", zap.Error(err), zap.Int("campaignID", group.CampaignID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	r.Logger.Info("Campaign group created", zap.Int("campaignID", model.CampaignID), zap.Int("groupID", model.ID), zap.Int("groupNumber", model.GroupNumber))
	return model.toDomainMapper(), nil
}

// ReserveSeat increments member_count only while it is below capacity and inserts
// the membership in the same transaction.
func (r *GroupRepository) ReserveSeat(groupID int, membership *domainCampaign.GroupMembership) (*domainCampaign.GroupMembership, error) {
	model := membershipFromDomainMapper(membership)
	model.GroupID = groupID
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CampaignGroup{}).
			Where("id = ? AND member_count < capacity", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errGroupFull
		}
		return tx.Create(model).Error
	})
	switch {
	case err == nil:
		r.Logger.Info("Seat reserved", zap.Int("campaignID", model.CampaignID), zap.Int("groupID", groupID), zap.String("phone", model.Phone))
		return model.toDomainMapper(), nil
	case errors.Is(err, errGroupFull):
		return nil, domainErrors.NewAppErrorWithType(domainErrors.ConcurrencyConflict)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return nil, domainErrors.NewAppErrorWithType(domainErrors.DuplicateRegistration)
	default:
		r.Logger.Error("Error reserving seat", zap.Error(err), zap.Int("groupID", groupID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
}

// ReleaseSeat undoes ReserveSeat. Releasing an already released seat is a no-op.
func (r *GroupRepository) ReleaseSeat(membershipID, groupID int) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", membershipID).Delete(&GroupMembership{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&CampaignGroup{}).
			Where("id = ? AND member_count > 0", groupID).
			UpdateColumn("member_count", gorm.Expr("member_count - ?", 1)).Error
	})
	if err != nil {
		r.Logger.Error("Error releasing seat", zap.Error(err), zap.Int("groupID", groupID), zap.Int("membershipID", membershipID))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	r.Logger.Info("Seat released", zap.Int("groupID", groupID), zap.Int("membershipID", membershipID))
	return nil
}

func (g *CampaignGroup) toDomainMapper() *domainCampaign.CampaignGroup {
	return &domainCampaign.CampaignGroup{
		ID:              g.ID,
		CampaignID:      g.CampaignID,
		GroupNumber:     g.GroupNumber,
		ExternalGroupID: g.ExternalGroupID,
		InviteLink:      g.InviteLink,
		MemberCount:     g.MemberCount,
		Capacity:        g.Capacity,
		CreatedAt:       g.CreatedAt,
	}
}

func groupFromDomainMapper(g *domainCampaign.CampaignGroup) *CampaignGroup {
	return &CampaignGroup{
		ID:              g.ID,
		CampaignID:      g.CampaignID,
		GroupNumber:     g.GroupNumber,
		ExternalGroupID: g.ExternalGroupID,
		InviteLink:      g.InviteLink,
		MemberCount:     g.MemberCount,
		Capacity:        g.Capacity,
	}
}
