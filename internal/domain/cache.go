package domain

import (
	"context"
	"time"
)

// Cache holds derived per-user views and short-lived rate counters.
// Community tier runs an in-process LRU; Pro tier adds Redis behind it.
type Cache interface {
	// Get returns the cached view stored under key for userID.
	// A miss returns nil, nil.
	Get(ctx context.Context, userID string, key string) ([]byte, error)

	// Set stores a view for userID until ttl passes.
	Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error

	// Purge drops every view cached for userID. Counters are kept.
	Purge(ctx context.Context, userID string) error

	// IncrementCounter bumps a per-user counter and returns the new value.
	// The counter resets once window has passed since its first increment.
	IncrementCounter(ctx context.Context, userID string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string `mapstructure:"type"`

	LocalMaxSize int           `mapstructure:"local_max_size"`
	LocalTTL     time.Duration `mapstructure:"local_ttl"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// EnableTwoPhase keeps an LRU in front of Redis.
	EnableTwoPhase bool `mapstructure:"enable_two_phase"`
}
