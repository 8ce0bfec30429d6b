package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"careerkit-credits/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "credits:balance:"

// Cache is a read-through Redis cache of resolved balances.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

type cachedBalance struct {
	Balance models.Balance `json:"balance"`
	Source  Source         `json:"source"`
}

func cacheKey(userKey string) string {
	return cacheKeyPrefix + userKey
}

// Get returns false on a miss or on any Redis error.
func (c *Cache) Get(ctx context.Context, userKey string) (*cachedBalance, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(userKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read balance cache: %w", err)
	}

	var cb cachedBalance
	if err := json.Unmarshal([]byte(val), &cb); err != nil {
		return nil, false, fmt.Errorf("decode cached balance: %w", err)
	}
	return &cb, true, nil
}

func (c *Cache) Set(ctx context.Context, userKey string, cb cachedBalance) error {
	data, err := json.Marshal(cb)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(userKey), data, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, userKey string) error {
	return c.client.Del(ctx, cacheKey(userKey)).Err()
}
