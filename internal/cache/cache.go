package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var errUserRequired = fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)

// New creates the cache selected by cfg.Type. A redis cache gets an LRU in
// front of it when two-phase caching is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return remote, nil
		}
		return NewTwoPhaseCache(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil

	default:
		return nil, fmt.Errorf("%w: unsupported cache type: %s", domain.ErrInvalidInput, cfg.Type)
	}
}

// TwoPhaseCache reads views from a local L1 before the shared L2.
// L1 entries live at most l1TTL, which bounds how long a purge on another
// node can go unseen here.
type TwoPhaseCache struct {
	local  domain.Cache
	remote domain.Cache
	l1TTL  time.Duration
}

// NewTwoPhaseCache layers local over remote.
func NewTwoPhaseCache(local, remote domain.Cache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get checks L1, then L2, refilling L1 on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, userID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, userID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, userID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes L2 with ttl and L1 with the shorter of ttl and l1TTL.
func (c *TwoPhaseCache) Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, userID, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, userID, key, value, min(ttl, c.l1TTL))
}

// Purge clears both layers. L1 is cleared even when L2 fails.
func (c *TwoPhaseCache) Purge(ctx context.Context, userID string) error {
	return errors.Join(c.local.Purge(ctx, userID), c.remote.Purge(ctx, userID))
}

// IncrementCounter always goes to L2 so every node shares the count.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, userID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, userID, key, window)
}

// Ping checks both layers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both layers.
func (c *TwoPhaseCache) Close() error {
	return errors.Join(c.local.Close(), c.remote.Close())
}
