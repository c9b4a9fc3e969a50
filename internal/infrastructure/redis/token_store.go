package redis

import (
	"context"
	"errors"

	"auction-sync/internal/domain"

	"github.com/go-redis/redis/v8"
)

const tokenKeyPrefix = "auction_sync:secure:"

// RedisTokenStore keeps secure-storage items in redis so several local
// processes share one login.
type RedisTokenStore struct {
	client *redis.Client
}

var _ domain.TokenStore = (*RedisTokenStore)(nil)

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (r *RedisTokenStore) GetItem(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, tokenKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (r *RedisTokenStore) SetItem(ctx context.Context, key, value string) error {
	if value == "" {
		return r.client.Del(ctx, tokenKeyPrefix+key).Err()
	}
	return r.client.Set(ctx, tokenKeyPrefix+key, value, 0).Err()
}
