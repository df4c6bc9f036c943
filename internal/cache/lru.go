// Package cache provides caching implementations for Kestrel.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// slot addresses one cached view.
type slot struct {
	user string
	key  string
}

type view struct {
	slot      slot
	value     []byte
	expiresAt time.Time
}

type counter struct {
	count     int64
	expiresAt time.Time
}

// LRUCache is an in-process view cache bounded by entry count.
// It is the Community tier cache and the L1 of the two-phase cache.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	views    map[slot]*list.Element
	byUser   map[string]map[string]struct{}
	order    *list.List
	counters map[slot]*counter

	now func() time.Time
}

// NewLRUCache creates an LRU cache holding at most maxSize views.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		views:    make(map[slot]*list.Element),
		byUser:   make(map[string]map[string]struct{}),
		order:    list.New(),
		counters: make(map[slot]*counter),
		now:      time.Now,
	}
}

// Get returns a live view and marks it recently used.
func (c *LRUCache) Get(_ context.Context, userID string, key string) ([]byte, error) {
	if userID == "" {
		return nil, errUserRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.views[slot{userID, key}]
	if !ok {
		return nil, nil
	}
	v := elem.Value.(*view)
	if c.now().After(v.expiresAt) {
		c.drop(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return v.value, nil
}

// Set stores a view, evicting the least recently used ones past capacity.
func (c *LRUCache) Set(_ context.Context, userID string, key string, value []byte, ttl time.Duration) error {
	if userID == "" {
		return errUserRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := slot{userID, key}
	expiresAt := c.now().Add(ttl)
	if elem, ok := c.views[s]; ok {
		v := elem.Value.(*view)
		v.value = value
		v.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	c.views[s] = c.order.PushFront(&view{slot: s, value: value, expiresAt: expiresAt})
	keys, ok := c.byUser[userID]
	if !ok {
		keys = make(map[string]struct{})
		c.byUser[userID] = keys
	}
	keys[key] = struct{}{}

	for c.order.Len() > c.maxSize {
		c.drop(c.order.Back())
	}
	return nil
}

// Purge drops all views of userID.
func (c *LRUCache) Purge(_ context.Context, userID string) error {
	if userID == "" {
		return errUserRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byUser[userID] {
		if elem, ok := c.views[slot{userID, key}]; ok {
			c.order.Remove(elem)
			delete(c.views, slot{userID, key})
		}
	}
	delete(c.byUser, userID)
	return nil
}

// IncrementCounter bumps a fixed-window counter.
func (c *LRUCache) IncrementCounter(_ context.Context, userID string, key string, window time.Duration) (int64, error) {
	if userID == "" {
		return 0, errUserRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := slot{userID, key}
	if e, ok := c.counters[s]; ok && !now.After(e.expiresAt) {
		e.count++
		return e.count, nil
	}

	if len(c.counters) >= c.maxSize {
		for k, e := range c.counters {
			if now.After(e.expiresAt) {
				delete(c.counters, k)
			}
		}
	}
	c.counters[s] = &counter{count: 1, expiresAt: now.Add(window)}
	return 1, nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views = make(map[slot]*list.Element)
	c.byUser = make(map[string]map[string]struct{})
	c.order = list.New()
	c.counters = make(map[slot]*counter)
	return nil
}

// Len reports how many views are held.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache) drop(elem *list.Element) {
	if elem == nil {
		return
	}
	v := elem.Value.(*view)
	c.order.Remove(elem)
	delete(c.views, v.slot)
	if keys, ok := c.byUser[v.slot.user]; ok {
		delete(keys, v.slot.key)
		if len(keys) == 0 {
			delete(c.byUser, v.slot.user)
		}
	}
}
