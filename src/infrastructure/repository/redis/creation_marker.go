package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var releaseMarkerScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// CreationMarker is the per-campaign "group creation in progress" flag
type CreationMarker struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewCreationMarker(client *redis.Client, loggerInstance *logger.Logger) *CreationMarker {
	return &CreationMarker{Client: client, Logger: loggerInstance}
}

func markerKey(campaignID int) string {
	return fmt.Sprintf("campaign:%d:group-creation", campaignID)
}

func (m *CreationMarker) Acquire(ctx context.Context, campaignID int, token string, ttl time.Duration) (bool, error) {
	ok, err := m.Client.SetNX(ctx, markerKey(campaignID), token, ttl).Result()
	if err != nil {
		m.Logger.Error("Error acquiring creation marker", zap.Error(err), zap.Int("campaignID", campaignID))
		return false, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return ok, nil
}

// Release deletes the marker only while it still carries token
func (m *CreationMarker) Release(ctx context.Context, campaignID int, token string) error {
	if err := releaseMarkerScript.Run(ctx, m.Client, []string{markerKey(campaignID)}, token).Err(); err != nil {
		m.Logger.Error("Error releasing creation marker", zap.Error(err), zap.Int("campaignID", campaignID))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}
