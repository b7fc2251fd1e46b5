package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plexcord/connstatus/internal/config"
)

// Cache stores resolved records so repeated disconnects do not hit the
// backend.
type Cache interface {
	Get(ctx context.Context, code string) (ErrorRecord, bool, error)
	Set(ctx context.Context, rec ErrorRecord, ttl time.Duration) error
}

// NewCache builds the cache selected by cfg. The "none" type returns nil.
func NewCache(cfg config.CatalogConfig) (Cache, error) {
	switch cfg.CacheType {
	case "none", "":
		return nil, nil
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		rc, err := NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown catalog cache type: %s", cfg.CacheType)
	}
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rec     ErrorRecord
	expires time.Time // zero means no expiry
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached record for code.
func (c *MemoryCache) Get(ctx context.Context, code string) (ErrorRecord, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[code]
	c.mu.RUnlock()

	if !ok {
		return ErrorRecord{}, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, code)
		c.mu.Unlock()
		return ErrorRecord{}, false, nil
	}
	return e.rec, true, nil
}

// Set stores rec. A non-positive ttl keeps it until the process exits.
func (c *MemoryCache) Set(ctx context.Context, rec ErrorRecord, ttl time.Duration) error {
	e := memoryEntry{rec: rec}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[rec.Code] = e
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares resolved records between orchestrator instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to the Redis server at url.
// Returns error if connection fails.
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: "connstatus:catalog:",
	}, nil
}

// Get returns the cached record for code.
func (c *RedisCache) Get(ctx context.Context, code string) (ErrorRecord, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+code).Bytes()
	if err == redis.Nil {
		return ErrorRecord{}, false, nil
	}
	if err != nil {
		return ErrorRecord{}, false, fmt.Errorf("reading catalog entry: %w", err)
	}

	var rec ErrorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ErrorRecord{}, false, fmt.Errorf("decoding catalog entry: %w", err)
	}
	return rec, true, nil
}

// Set stores rec with the given ttl. A non-positive ttl means no expiry.
func (c *RedisCache) Set(ctx context.Context, rec ErrorRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding catalog entry: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+rec.Code, data, ttl).Err(); err != nil {
		return fmt.Errorf("writing catalog entry: %w", err)
	}
	return nil
}

// Clear removes every cached record.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning catalog keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
