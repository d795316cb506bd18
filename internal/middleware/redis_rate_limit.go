package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/cache"
	"github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/util"
	"go.uber.org/zap"
)

var redisAvailable = func() bool {
	return cache.GetRedisClient() != nil
}

// RedisRateLimitMiddleware is a fixed-window limiter shared by every
// instance through Redis
func RedisRateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		redisClient := cache.GetRedisClient()
		if redisClient == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("rate_limit:%s:%s", c.FullPath(), config.key(c))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, err := redisClient.IncrWithTTL(ctx, key, config.Window)
		if err != nil {
			logger.Log.Error("Rate limit check failed, rejecting request",
				zap.String("key", key),
				zap.Error(err),
			)
			util.RespondWithAPIError(c, errors.ServiceUnavailable("rate limiter"))
			return
		}

		if count > int64(config.Limit) {
			retryAfter := int(config.Window.Seconds())
			if ttl, err := redisClient.TTL(ctx, key); err == nil && ttl > 0 {
				retryAfter = int(ttl.Seconds()) + 1
			}
			logger.Log.Warn("Rate limit exceeded",
				logger.WithIP(c.ClientIP()),
				zap.Int("limit", config.Limit),
				zap.Int64("count", count),
			)
			respondRateLimited(c, config.Limit, retryAfter)
			return
		}

		c.Next()
	}
}
