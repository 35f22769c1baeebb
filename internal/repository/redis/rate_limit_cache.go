package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carhistory/internal/bucketing"
	"carhistory/internal/client"
	"carhistory/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// RateLimitCache holds fixed-window counters in Redis, keyed by operation
// plus a hashed identity dimension. Counters are shared across replicas, so
// the limit holds for the whole deployment, not per process.
type RateLimitCache struct {
	client    *client.RedisClient
	bucketing *bucketing.BucketingManager
}

func NewRateLimitCache(client *client.RedisClient, bm *bucketing.BucketingManager) *RateLimitCache {
	return &RateLimitCache{client: client, bucketing: bm}
}

// Increment bumps the counter for key within the current window and returns
// the new count. The key carries the aligned window start, so windows reset
// on bucket boundaries and the key expires with the window.
func (c *RateLimitCache) Increment(ctx context.Context, operation, hashedIdent string, window time.Duration) (int64, error) {
	windowStart := c.bucketing.GetTimeBucket(int(window.Seconds()))
	key := fmt.Sprintf("%s%s:%s:%d", rateLimitPrefix, operation, hashedIdent, windowStart)

	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			zap.String("operation", operation),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return count, nil
}
