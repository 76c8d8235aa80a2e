package campaign

import (
	"errors"
	"fmt"
	"time"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Campaign is the database model for campaigns
type Campaign struct {
	ID                  int        `gorm:"primaryKey"`
	CompanyID           int        `gorm:"column:company_id;index"`
	Name                string     `gorm:"column:name;size:255"`
	Status              string     `gorm:"column:status;size:20;index"`
	InstanceID          string     `gorm:"column:instance_id;size:100"`
	GroupNameTemplate   string     `gorm:"column:group_name_template;size:255"`
	GroupDescription    string     `gorm:"column:group_description;type:text"`
	GroupImageURL       string     `gorm:"column:group_image_url;size:500"`
	OnlyAdminsSend      bool       `gorm:"column:only_admins_send;default:false"`
	MaxMembersPerGroup  int        `gorm:"column:max_members_per_group"`
	AutoCreateNewGroups bool       `gorm:"column:auto_create_new_groups;default:true"`
	DistributorSlug     string     `gorm:"column:distributor_slug;size:120;uniqueIndex"`
	SettingsSyncStatus  string     `gorm:"column:settings_sync_status;size:20;default:idle"`
	SettingsSyncTotal   int        `gorm:"column:settings_sync_total;default:0"`
	SettingsSyncDone    int        `gorm:"column:settings_sync_done;default:0"`
	SettingsSyncFailed  int        `gorm:"column:settings_sync_failed;default:0"`
	SettingsSyncAt      *time.Time `gorm:"column:settings_sync_at"`
	CreatedAt           time.Time  `gorm:"autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

var ColumnsCampaignMapping = map[string]string{
	"id":                  "id",
	"companyId":           "company_id",
	"name":                "name",
	"status":              "status",
	"instanceId":          "instance_id",
	"groupNameTemplate":   "group_name_template",
	"groupDescription":    "group_description",
	"groupImageUrl":       "group_image_url",
	"onlyAdminsSend":      "only_admins_send",
	"maxMembersPerGroup":  "max_members_per_group",
	"autoCreateNewGroups": "auto_create_new_groups",
	"distributorSlug":     "distributor_slug",
	"settingsSyncStatus":  "settings_sync_status",
	"settingsSyncTotal":   "settings_sync_total",
	"settingsSyncDone":    "settings_sync_done",
	"settingsSyncFailed":  "settings_sync_failed",
	"createdAt":           "created_at",
	"updatedAt":           "updated_at",
}

// CampaignRepositoryInterface defines the campaign persistence operations
type CampaignRepositoryInterface interface {
	GetByID(id int) (*domainCampaign.Campaign, error)
	GetBySlug(slug string) (*domainCampaign.Campaign, error)
	GetForCompany(companyID, id int) (*domainCampaign.Campaign, error)
	GetByIDsForCompany(companyID int, ids []int) (*[]domainCampaign.Campaign, error)
	UpdateStatus(id int, from, to domainCampaign.Status) error
	Update(id int, campaignMap map[string]interface{}) (*domainCampaign.Campaign, error)
	StartSettingsSync(id, total int, staleBefore time.Time) error
	RecordSettingsSync(id int, failed bool) error
	FinishSettingsSync(id int) error
}

type CampaignRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewCampaignRepository(db *gorm.DB, loggerInstance *logger.Logger) CampaignRepositoryInterface {
	return &CampaignRepository{DB: db, Logger: loggerInstance}
}

func (r *CampaignRepository) first(query string, args ...interface{}) (*domainCampaign.Campaign, error) {
	var campaign Campaign
	err := r.DB.Where(query, args...).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
		}
		r.Logger.Error("Error getting campaign", zap.Error(err))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return campaign.toDomainMapper(), nil
}

func (r *CampaignRepository) GetByID(id int) (*domainCampaign.Campaign, error) {
	return r.first("id = ?", id)
}

func (r *CampaignRepository) GetBySlug(slug string) (*domainCampaign.Campaign, error) {
	return r.first("distributor_slug = ?", slug)
}

// GetForCompany hides campaigns of other companies behind NotFound
func (r *CampaignRepository) GetForCompany(companyID, id int) (*domainCampaign.Campaign, error) {
	return r.first("id = ? AND company_id = ?", id, companyID)
}

func (r *CampaignRepository) GetByIDsForCompany(companyID int, ids []int) (*[]domainCampaign.Campaign, error) {
	var campaigns []Campaign
	if len(ids) == 0 {
		return &[]domainCampaign.Campaign{}, nil
	}
	if err := r.DB.Where("company_id = ? AND id IN ?", companyID, ids).Find(&campaigns).Error; err != nil {
		r.Logger.Error("Error getting campaigns by ids", zap.Error(err), zap.Int("companyID", companyID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return arrayToDomainMapper(&campaigns), nil
}

// UpdateStatus moves the campaign only if it is still in the expected status
func (r *CampaignRepository) UpdateStatus(id int, from, to domainCampaign.Status) error {
	res := r.DB.Model(&Campaign{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{"status": string(to), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		r.Logger.Error("Error updating campaign status", zap.Error(res.Error), zap.Int("campaignID", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if res.RowsAffected == 0 {
		r.Logger.Warn("Campaign status changed concurrently", zap.Int("campaignID", id), zap.String("from", string(from)))
		return domainErrors.NewAppErrorWithType(domainErrors.InvalidTransition)
	}
	r.Logger.Info("Campaign status updated", zap.Int("campaignID", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

// Update applies a partial edit. A max_members_per_group outside
// MinMembersPerGroup..MaxMembersPerGroup is rejected.
func (r *CampaignRepository) Update(id int, campaignMap map[string]interface{}) (*domainCampaign.Campaign, error) {
	updateData := make(map[string]interface{})
	for k, v := range campaignMap {
		if column, ok := ColumnsCampaignMapping[k]; ok {
			updateData[column] = v
		} else {
			updateData[k] = v
		}
	}
	if v, ok := updateData["max_members_per_group"]; ok {
		n, isInt := v.(int)
		if !isInt || !domainCampaign.ValidMaxMembersPerGroup(n) {
			return nil, domainErrors.NewAppError(
				fmt.Errorf("max members per group must be between %d and %d", domainCampaign.MinMembersPerGroup, domainCampaign.MaxMembersPerGroup),
				domainErrors.ValidationError)
		}
	}
	if err := r.DB.Model(&Campaign{ID: id}).Updates(updateData).Error; err != nil {
		r.Logger.Error("Error updating campaign", zap.Error(err), zap.Int("campaignID", id))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return r.GetByID(id)
}

// StartSettingsSync resets the sync counters unless a sync is already running.
// A running sync with no progress since staleBefore was abandoned and is taken over.
func (r *CampaignRepository) StartSettingsSync(id, total int, staleBefore time.Time) error {
	res := r.DB.Model(&Campaign{}).
		Where("id = ? AND (settings_sync_status <> ? OR settings_sync_at IS NULL OR settings_sync_at < ?)",
			id, string(domainCampaign.SyncRunning), staleBefore).
		Updates(map[string]interface{}{
			"settings_sync_status": string(domainCampaign.SyncRunning),
			"settings_sync_total":  total,
			"settings_sync_done":   0,
			"settings_sync_failed": 0,
			"settings_sync_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		r.Logger.Error("Error starting settings sync", zap.Error(res.Error), zap.Int("campaignID", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if res.RowsAffected == 0 {
		return domainErrors.NewAppError(errors.New("a settings sync is already running for this campaign"), domainErrors.InvalidTransition)
	}
	return nil
}

func (r *CampaignRepository) RecordSettingsSync(id int, failed bool) error {
	columns := map[string]interface{}{
		"settings_sync_done": gorm.Expr("settings_sync_done + ?", 1),
		"settings_sync_at":   time.Now().UTC(),
	}
	if failed {
		columns["settings_sync_failed"] = gorm.Expr("settings_sync_failed + ?", 1)
	}
	if err := r.DB.Model(&Campaign{}).Where("id = ?", id).UpdateColumns(columns).Error; err != nil {
		r.Logger.Error("Error recording settings sync progress", zap.Error(err), zap.Int("campaignID", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}

func (r *CampaignRepository) FinishSettingsSync(id int) error {
	err := r.DB.Model(&Campaign{}).Where("id = ?", id).
		UpdateColumn("settings_sync_status", string(domainCampaign.SyncCompleted)).Error
	if err != nil {
		r.Logger.Error("Error finishing settings sync", zap.Error(err), zap.Int("campaignID", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}

func (c *Campaign) toDomainMapper() *domainCampaign.Campaign {
	return &domainCampaign.Campaign{
		ID:                  c.ID,
		CompanyID:           c.CompanyID,
		Name:                c.Name,
		Status:              domainCampaign.Status(c.Status),
		InstanceID:          c.InstanceID,
		GroupNameTemplate:   c.GroupNameTemplate,
		GroupDescription:    c.GroupDescription,
		GroupImageURL:       c.GroupImageURL,
		OnlyAdminsSend:      c.OnlyAdminsSend,
		MaxMembersPerGroup:  c.MaxMembersPerGroup,
		AutoCreateNewGroups: c.AutoCreateNewGroups,
		DistributorSlug:     c.DistributorSlug,
		SettingsSyncStatus:  domainCampaign.SyncStatus(c.SettingsSyncStatus),
		SettingsSyncTotal:   c.SettingsSyncTotal,
		SettingsSyncDone:    c.SettingsSyncDone,
		SettingsSyncFailed:  c.SettingsSyncFailed,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func arrayToDomainMapper(campaigns *[]Campaign) *[]domainCampaign.Campaign {
	out := make([]domainCampaign.Campaign, len(*campaigns))
	for i, c := range *campaigns {
		out[i] = *c.toDomainMapper()
	}
	return &out
}
