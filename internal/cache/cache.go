// internal/cache/cache.go
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ===============================
// CACHE CONFIGURATION
// ===============================

// Config holds view cache configuration
type Config struct {
	DefaultTTL time.Duration `json:"default_ttl"`
	MaxKeys    int           `json:"max_keys"`
}

// DefaultConfig returns a default view cache configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL: 5 * time.Minute,
		MaxKeys:    256,
	}
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Keys      int     `json:"keys"`
	HitRatio  float64 `json:"hit_ratio"`
}

// ===============================
// VIEW CACHE
// ===============================

// Cache memoizes values derived from persisted records (summaries, streaks).
// Owners invalidate by prefix after every mutation. The TTL bounds staleness
// of time-dependent views such as "last 7 days".
type Cache struct {
	mu     sync.Mutex
	items  map[string]*cacheItem
	config Config
	stats  Stats
	group  singleflight.Group
	gen    uint64
	now    func() time.Time
	logger *zap.Logger
}

type cacheItem struct {
	value      interface{}
	expiresAt  time.Time
	accessedAt time.Time
}

// New creates an in-memory view cache
func New(config *Config, logger *zap.Logger) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		items:  make(map[string]*cacheItem),
		config: *config,
		now:    time.Now,
		logger: logger.With(zap.String("component", "cache")),
	}
	if c.config.DefaultTTL <= 0 {
		c.config.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if c.config.MaxKeys <= 0 {
		c.config.MaxKeys = DefaultConfig().MaxKeys
	}
	return c
}

// Get retrieves a live value
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	now := c.now()
	if !now.Before(item.expiresAt) {
		delete(c.items, key)
		c.stats.Misses++
		return nil, false
	}
	item.accessedAt = now
	c.stats.Hits++
	return item.value, true
}

// Set stores value for ttl (DefaultTTL when ttl <= 0)
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(key, value, ttl)
}

// set stores value; callers hold mu
func (c *Cache) set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	if _, exists := c.items[key]; !exists && len(c.items) >= c.config.MaxKeys {
		c.evictLRU()
	}
	now := c.now()
	c.items[key] = &cacheItem{value: value, expiresAt: now.Add(ttl), accessedAt: now}
	c.stats.Sets++
}

// DeletePattern removes all keys matching a pattern ("prefix*", "*suffix", "*" or exact).
// Values still being computed by CacheResult when it runs are not stored.
func (c *Cache) DeletePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	removed := 0
	for key := range c.items {
		if matchPattern(key, pattern) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Keys = len(c.items)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(total)
	}
	return stats
}

// CacheResult returns the cached value for key or computes, stores and returns
// it. Concurrent misses for the same key share one computation unless an
// invalidation happened in between; a result computed before an
// invalidation is returned to its callers but never stored.
func (c *Cache) CacheResult(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if value, found := c.Get(key); found {
		c.logger.Debug("Cache hit", zap.String("key", key))
		return value, nil
	}

	gen := c.generation()
	value, err, _ := c.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		result, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			c.logger.Debug("Discarding result computed before invalidation", zap.String("key", key))
			return result, nil
		}
		c.set(key, result, ttl)
		return result, nil
	})
	return value, err
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// evictLRU evicts the least recently used item; callers hold mu
func (c *Cache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range c.items {
		if oldestKey == "" || item.accessedAt.Before(oldest) {
			oldestKey = key
			oldest = item.accessedAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.stats.Evictions++
	}
}

// matchPattern performs simple wildcard pattern matching
func matchPattern(str, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(str, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(str, strings.TrimPrefix(pattern, "*"))
	}
	return str == pattern
}
