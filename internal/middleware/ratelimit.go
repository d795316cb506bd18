package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/util"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
	// KeyFunc picks the bucket for a request; client IP when nil
	KeyFunc func(c *gin.Context) string
}

// DefaultRateLimitConfig returns the general API limits
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  120,
		Window: time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for login endpoints
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  10,
		Window: time.Minute,
	}
}

func (c RateLimitConfig) key(ctx *gin.Context) string {
	if c.KeyFunc != nil {
		return c.KeyFunc(ctx)
	}
	return ctx.ClientIP()
}

// TokenBucket for rate limiting
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow takes a token if one is available
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RetryAfter returns seconds to wait before the next token
func (tb *TokenBucket) RetryAfter() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.tokens < 1 {
		return int((1-tb.tokens)/tb.refillRate) + 1
	}
	return 0
}

func (tb *TokenBucket) idleSince(t time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill.Before(t)
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	buckets map[string]*TokenBucket
	config  RateLimitConfig
	mu      sync.Mutex
}

// NewRateLimiter creates an in-process rate limiting middleware
func NewRateLimiter(config RateLimitConfig) gin.HandlerFunc {
	rl := &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
	}
	go rl.cleanupRoutine(time.Minute)

	return func(c *gin.Context) {
		key := config.key(c)
		bucket := rl.bucket(key)
		if !bucket.Allow() {
			respondRateLimited(c, config.Limit, bucket.RetryAfter())
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) bucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[key]
	if !exists {
		refillRate := float64(rl.config.Limit) / rl.config.Window.Seconds()
		bucket = NewTokenBucket(float64(rl.config.Limit), refillRate)
		rl.buckets[key] = bucket
	}
	return bucket
}

// cleanupRoutine drops buckets that have been idle for two windows
func (rl *RateLimiter) cleanupRoutine(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-2 * rl.config.Window)
		rl.mu.Lock()
		for key, bucket := range rl.buckets {
			if bucket.idleSince(cutoff) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

func respondRateLimited(c *gin.Context, limit, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", "0")
	util.RespondWithAPIError(c, errors.RateLimited("").WithExtra("retry_after", retryAfter))
}

// RateLimitSmart uses the shared Redis limiter when Redis is connected and
// falls back to in-process token buckets otherwise
func RateLimitSmart(config RateLimitConfig) gin.HandlerFunc {
	local := NewRateLimiter(config)
	distributed := RedisRateLimitMiddleware(config)
	return func(c *gin.Context) {
		if redisAvailable() {
			distributed(c)
			return
		}
		local(c)
	}
}
