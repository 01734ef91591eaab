package geocoding

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores successful forward lookups keyed by normalised address.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, res Result, ttl time.Duration)
}

const redisKeyPrefix = "geocode:"

type RedisCache struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisCache(rdb *redis.Client, log *zap.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, log: log.Named("geocode-cache")}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("redis get", zap.Error(err))
		}
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.Warn("decode cached result", zap.Error(err))
		return Result{}, false
	}
	return res, true
}

func (c *RedisCache) Set(ctx context.Context, key string, res Result, ttl time.Duration) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		c.log.Warn("redis set", zap.Error(err))
	}
}

type memoryEntry struct {
	res     Result
	expires time.Time
}

// defaultMemoryCacheEntries bounds the in-process cache.
const defaultMemoryCacheEntries = 10000

// MemoryCache is the fallback when REDIS_ADDR is empty. Once full, Set drops
// expired entries and then the ones closest to expiry.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: defaultMemoryCacheEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Result{}, false
	}
	if e.expired(c.now()) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Result{}, false
	}
	return e.res, true
}

func (c *MemoryCache) Set(_ context.Context, key string, res Result, ttl time.Duration) {
	now := c.now()
	e := memoryEntry{res: res}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.entries[key] = e
}

// Len reports how many entries are held, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evict frees at least one slot. Caller holds c.mu.
func (c *MemoryCache) evict(now time.Time) {
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	for len(c.entries) >= c.maxEntries {
		victim, first := "", true
		var soonest time.Time
		for k, e := range c.entries {
			if first || expiresBefore(e.expires, soonest) {
				victim, soonest, first = k, e.expires, false
			}
		}
		delete(c.entries, victim)
	}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// expiresBefore orders deadlines with "never" last.
func expiresBefore(a, b time.Time) bool {
	switch {
	case a.IsZero():
		return false
	case b.IsZero():
		return true
	default:
		return a.Before(b)
	}
}
