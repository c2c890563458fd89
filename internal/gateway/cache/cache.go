// Package cache stores generated responses in Redis so repeated
// suggestion and title-generation requests skip the upstream call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/coursepilot/gateway/internal/gateway/orchestrator"
	"github.com/coursepilot/gateway/internal/shared/redis"
)

type Cache struct {
	redis   *redis.Client
	ttl     time.Duration
	enabled bool
}

// New creates a cache instance. A disabled cache is a no-op on both reads
// and writes.
func New(redisClient *redis.Client, enabled bool, ttl time.Duration) *Cache {
	return &Cache{redis: redisClient, ttl: ttl, enabled: enabled}
}

// key hashes the request parts into a deterministic cache key.
func (c *Cache) key(parts []string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "cache:response:" + hex.EncodeToString(hash[:])
}

// Get retrieves a cached result for the request parts; ok is false on
// miss, deserialization failure, or when caching is disabled.
func (c *Cache) Get(ctx context.Context, parts ...string) (*orchestrator.GenerateResult, bool) {
	if !c.enabled {
		return nil, false
	}

	val, err := c.redis.Get(ctx, c.key(parts))
	if err != nil {
		return nil, false
	}

	var cached orchestrator.GenerateResult
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return nil, false
	}
	return &cached, true
}

// Set stores a result under the request parts. Failures are swallowed;
// caching is best effort.
func (c *Cache) Set(ctx context.Context, result *orchestrator.GenerateResult, parts ...string) {
	if !c.enabled {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, c.key(parts), string(data), c.ttl)
}
