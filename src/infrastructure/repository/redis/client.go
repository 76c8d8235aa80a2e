package redis

import (
	"context"
	"fmt"
	"time"

	"go-wa-campaign-api/src/infrastructure/config"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to redis. It returns nil, nil when no address is configured,
// in which case callers fall back to the database.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
