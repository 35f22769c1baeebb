package client

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"carhistory/internal/config"
	"carhistory/internal/util"
)

// incrWithExpireScript increments a counter and attaches the window TTL only
// when the key is created, so the window does not slide on every hit.
const incrWithExpireScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

type RedisClient struct {
	rdb    *redis.Client
	config *config.RedisConfig
}

func NewRedisClient(cfg *config.Config, logger *zap.Logger) (*RedisClient, error) {
	redisConfig := cfg.Redis

	rdb := redis.NewClient(&redis.Options{
		Addr:         redisConfig.Addr,
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	util.Info("Redis client initialized",
		zap.String("addr", redisConfig.Addr),
		zap.Int("db", redisConfig.DB),
	)

	return &RedisClient{rdb: rdb, config: &redisConfig}, nil
}

// IncrWithExpire atomically increments key, setting ttl on first increment.
func (c *RedisClient) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := c.rdb.Eval(ctx, incrWithExpireScript, []string{key}, int(ttl.Seconds())).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type %T from increment script", res)
	}
	return count, nil
}

func (c *RedisClient) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
