package search

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orkutrevival/backend/internal/cache"
	"github.com/orkutrevival/backend/internal/logger"
)

const generationKey = "search:generation"

// ResultCache keeps ranked hits in Redis. Writes to the index bump a
// generation counter that is part of every key, so stale pages are never
// read back after a change. A nil *ResultCache caches nothing.
type ResultCache struct {
	redis *cache.RedisClient
	ttl   time.Duration
}

// NewResultCache returns nil when redis is nil
func NewResultCache(redis *cache.RedisClient, ttl time.Duration) *ResultCache {
	if redis == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ResultCache{redis: redis, ttl: ttl}
}

func (c *ResultCache) key(ctx context.Context, prefix string, params interface{}) (string, error) {
	generation, err := c.redis.GetInt(ctx, generationKey)
	if err != nil {
		return "", err
	}
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return fmt.Sprintf("search:%s:%d:%x", prefix, generation, hash), nil
}

// Get returns cached hits or nil on a miss
func (c *ResultCache) Get(ctx context.Context, prefix string, params interface{}) *Hits {
	if c == nil {
		return nil
	}
	key, err := c.key(ctx, prefix, params)
	if err != nil {
		return nil
	}
	cached, err := c.redis.Get(ctx, key)
	if err != nil {
		if !cache.IsNil(err) {
			logger.WarnWithFields("Search cache read failed", err)
		}
		return nil
	}
	var hits Hits
	if err := json.Unmarshal([]byte(cached), &hits); err != nil {
		return nil
	}
	return &hits
}

// Put stores hits under the current generation
func (c *ResultCache) Put(ctx context.Context, prefix string, params interface{}, hits *Hits) {
	if c == nil || hits == nil {
		return
	}
	key, err := c.key(ctx, prefix, params)
	if err != nil {
		return
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return
	}
	if err := c.redis.SetEx(ctx, key, data, c.ttl); err != nil {
		logger.WarnWithFields("Search cache write failed", err)
	}
}

// Invalidate starts a new generation
func (c *ResultCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if _, err := c.redis.Incr(ctx, generationKey); err != nil {
		logger.WarnWithFields("Search cache invalidation failed", err)
	}
}
