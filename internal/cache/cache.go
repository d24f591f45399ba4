// Package cache provides the time-bounded key/value cache used by the price
// and currency clients. Implementations include in-memory (tests, single
// instance) and Redis (shared between instances).
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores string values with a per-entry time to live.
type Cache interface {
	// Get returns the value for key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool)

	// Put stores value under key for ttl. A non-positive ttl never expires.
	Put(ctx context.Context, key, value string, ttl time.Duration)
}

type entry struct {
	value   string
	expires time.Time
}

// Memory implements Cache with a map. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an in-memory cache using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an in-memory cache with an injected clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{entries: make(map[string]entry), now: now}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if m.expired(e) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && m.expired(cur) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false
	}
	return e.value, true
}

func (m *Memory) expired(e entry) bool {
	return !e.expires.IsZero() && !m.now().Before(e.expires)
}

func (m *Memory) Put(_ context.Context, key, value string, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// Redis implements Cache on a Redis client. Keys are namespaced by prefix.
// Errors are treated as misses.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedis creates a Redis-backed cache.
func NewRedis(rdb redis.Cmdable, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *Redis) Put(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	r.rdb.Set(ctx, r.prefix+key, value, ttl)
}
