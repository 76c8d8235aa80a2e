package campaign

import (
	"context"
	"errors"
	"time"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GroupCreationMarker records which request is currently creating a group for a
// campaign. It is used when redis is not configured.
type GroupCreationMarker struct {
	CampaignID int       `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	Token      string    `gorm:"column:token;size:64"`
	ExpiresAt  time.Time `gorm:"column:expires_at;index"`
}

func (GroupCreationMarker) TableName() string {
	return "group_creation_markers"
}

type CreationMarkerRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewCreationMarkerRepository(db *gorm.DB, loggerInstance *logger.Logger) *CreationMarkerRepository {
	return &CreationMarkerRepository{DB: db, Logger: loggerInstance}
}

// Acquire inserts the marker row. An expired marker left behind by a crashed
// holder is removed first.
func (r *CreationMarkerRepository) Acquire(ctx context.Context, campaignID int, token string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	db := r.DB.WithContext(ctx)
	if err := db.Where("campaign_id = ? AND expires_at < ?", campaignID, now).Delete(&GroupCreationMarker{}).Error; err != nil {
		r.Logger.Error("Error clearing expired creation marker", zap.Error(err), zap.Int("campaignID", campaignID))
		return false, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	err := db.Create(&GroupCreationMarker{CampaignID: campaignID, Token: token, ExpiresAt: now.Add(ttl)}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		r.Logger.Error("Error acquiring creation marker", zap.Error(err), zap.Int("campaignID", campaignID))
		return false, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return true, nil
}

// Release deletes the marker only if it is still held with the given token
func (r *CreationMarkerRepository) Release(ctx context.Context, campaignID int, token string) error {
	err := r.DB.WithContext(ctx).Where("campaign_id = ? AND token = ?", campaignID, token).Delete(&GroupCreationMarker{}).Error
	if err != nil {
		r.Logger.Error("Error releasing creation marker", zap.Error(err), zap.Int("campaignID", campaignID))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}
