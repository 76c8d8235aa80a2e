package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SummaryCache keeps public campaign summaries for a short TTL. Failures are
// logged and treated as cache misses.
type SummaryCache struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
}

func NewSummaryCache(client *redis.Client, loggerInstance *logger.Logger, ttl time.Duration) *SummaryCache {
	return &SummaryCache{Client: client, Logger: loggerInstance, TTL: ttl}
}

func summaryKey(slug string) string {
	return "campaign:summary:" + slug
}

func (c *SummaryCache) Get(ctx context.Context, slug string) (*domainCampaign.Summary, bool) {
	raw, err := c.Client.Get(ctx, summaryKey(slug)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.Logger.Warn("Error reading campaign summary cache", zap.Error(err), zap.String("slug", slug))
		}
		return nil, false
	}
	var summary domainCampaign.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		c.Logger.Warn("Corrupt campaign summary cache entry", zap.Error(err), zap.String("slug", slug))
		return nil, false
	}
	return &summary, true
}

func (c *SummaryCache) Set(ctx context.Context, slug string, summary *domainCampaign.Summary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.Client.Set(ctx, summaryKey(slug), raw, c.TTL).Err(); err != nil {
		c.Logger.Warn("Error writing campaign summary cache", zap.Error(err), zap.String("slug", slug))
	}
}

func (c *SummaryCache) Invalidate(ctx context.Context, slug string) {
	if err := c.Client.Del(ctx, summaryKey(slug)).Err(); err != nil {
		c.Logger.Warn("Error invalidating campaign summary cache", zap.Error(err), zap.String("slug", slug))
	}
}
