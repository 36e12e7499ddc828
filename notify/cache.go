package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnreadCache keeps per-user unread counters in redis so repeated count
// queries do not hit the table store. Evicted on every notification write;
// a nil client disables caching entirely.
type UnreadCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewUnreadCache creates a cache using the provided redis client and TTL.
func NewUnreadCache(client *redis.Client, ttl time.Duration) *UnreadCache {
	if ttl < 0 {
		ttl = 0
	}
	return &UnreadCache{redis: client, ttl: ttl}
}

func unreadCacheKey(userID string) string {
	return "unread:" + userID
}

// Get returns the cached count and whether it was present.
func (c *UnreadCache) Get(ctx context.Context, userID string) (int, bool) {
	if c == nil || c.redis == nil {
		return 0, false
	}
	raw, err := c.redis.Get(ctx, unreadCacheKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, unreadCacheKey(userID)).Err()
		}
		return 0, false
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		_ = c.redis.Del(ctx, unreadCacheKey(userID)).Err()
		return 0, false
	}
	return count, true
}

// Set stores the count under the configured TTL.
func (c *UnreadCache) Set(ctx context.Context, userID string, count int) {
	if c == nil || c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, unreadCacheKey(userID), strconv.Itoa(count), c.ttl).Err()
}

// Evict drops the cached count after a notification write.
func (c *UnreadCache) Evict(ctx context.Context, userID string) {
	if c == nil || c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, unreadCacheKey(userID)).Err()
}
