package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// incrementScript increments a counter and starts its window on first use.
var incrementScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// purgeScript deletes every view listed in a user's index, then the index.
var purgeScript = redis.NewScript(`
	local views = redis.call('SMEMBERS', KEYS[1])
	for _, k in ipairs(views) do
		redis.call('DEL', k)
	end
	redis.call('DEL', KEYS[1])
	return #views
`)

// RedisCache shares views and counters between Kestrel instances.
//
// Keys:
//
//	kestrel:{user}:view:{key}     cached view
//	kestrel:{user}:views          set of the user's view keys
//	kestrel:{user}:counter:{key}  fixed-window counter
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to redis: %v", domain.ErrUpstreamUnavailable, err)
	}

	return &RedisCache{client: client}, nil
}

// Get reads a view.
func (c *RedisCache) Get(ctx context.Context, userID string, key string) ([]byte, error) {
	if userID == "" {
		return nil, errUserRequired
	}

	val, err := c.client.Get(ctx, viewKey(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return val, nil
}

// Set writes a view and records it in the user's index. The index lives as
// long as the longest view written to it.
func (c *RedisCache) Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error {
	if userID == "" {
		return errUserRequired
	}

	vk, ik := viewKey(userID, key), indexKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, vk, value, ttl)
		pipe.SAdd(ctx, ik, vk)
		if ttl > 0 {
			pipe.ExpireGT(ctx, ik, ttl)
			pipe.ExpireNX(ctx, ik, ttl)
		}
		return nil
	})
	return unavailable(err)
}

// Purge removes all views of userID.
func (c *RedisCache) Purge(ctx context.Context, userID string) error {
	if userID == "" {
		return errUserRequired
	}
	return unavailable(purgeScript.Run(ctx, c.client, []string{indexKey(userID)}).Err())
}

// IncrementCounter bumps a fixed-window counter with INCR and PEXPIRE.
func (c *RedisCache) IncrementCounter(ctx context.Context, userID string, key string, window time.Duration) (int64, error) {
	if userID == "" {
		return 0, errUserRequired
	}

	n, err := incrementScript.Run(ctx, c.client, []string{counterKey(userID, key)}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return unavailable(c.client.Ping(ctx).Err())
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func viewKey(userID, key string) string {
	return "kestrel:" + userID + ":view:" + key
}

func indexKey(userID string) string {
	return "kestrel:" + userID + ":views"
}

func counterKey(userID, key string) string {
	return "kestrel:" + userID + ":counter:" + key
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: redis: %v", domain.ErrUpstreamUnavailable, err)
}
