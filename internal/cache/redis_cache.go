package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pharmapos/backend/internal/domain"
)

type RedisAlertSummaryCache struct {
	client *redis.Client
}

func NewRedisAlertSummaryCache(addr string, password string, db int) *RedisAlertSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAlertSummaryCache{client: client}
}

func (c *RedisAlertSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAlertSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisAlertSummaryCache) Get(ctx context.Context, key string) (*domain.AlertSummary, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.AlertSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisAlertSummaryCache) Set(ctx context.Context, key string, value *domain.AlertSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisAlertSummaryCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
