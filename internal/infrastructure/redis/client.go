package redis

import (
	"context"
	"fmt"
	"time"

	"auction-sync/internal/config"

	"github.com/go-redis/redis/v8"
)

// Connect opens a client from config and verifies it with a ping.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	return rdb, nil
}
