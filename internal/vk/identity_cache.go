package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdentityCache caches resolved identities. Caching is an optimization:
// every failure behaves like a miss and never surfaces to callers.
type IdentityCache interface {
	Get(ctx context.Context, userID int64) (Identity, bool)
	Set(ctx context.Context, userID int64, identity Identity)
}

type redisIdentityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisIdentityCache builds a Redis-backed cache. Returns nil when the
// client is absent or the TTL disables caching, which the Client treats as
// cache-off.
func NewRedisIdentityCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) IdentityCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &redisIdentityCache{client: client, ttl: ttl, logger: logger}
}

func identityKey(userID int64) string {
	return fmt.Sprintf("vk:identity:%d", userID)
}

func (c *redisIdentityCache) Get(ctx context.Context, userID int64) (Identity, bool) {
	raw, err := c.client.Get(ctx, identityKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("identity cache get failed", zap.Error(err))
		}
		return Identity{}, false
	}
	var identity Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return Identity{}, false
	}
	return identity, true
}

func (c *redisIdentityCache) Set(ctx context.Context, userID int64, identity Identity) {
	raw, err := json.Marshal(identity)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, identityKey(userID), raw, c.ttl).Err(); err != nil {
		c.logger.Debug("identity cache set failed", zap.Error(err))
	}
}
