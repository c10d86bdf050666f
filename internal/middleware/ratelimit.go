package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit is a fixed-window counter keyed by client IP. With no redis
// client configured it passes everything through; the limiter is a brute
// force brake, not a correctness guarantee.
func RateLimit(rdb *redis.Client, log zerolog.Logger, name string, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || perMinute <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		window := time.Now().Unix() / 60
		key := fmt.Sprintf("ratelimit:%s:%s:%d", name, c.ClientIP(), window)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Warn().Err(err).Str("limiter", name).Msg("rate limit check failed, allowing request")
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, 2*time.Minute)
		}

		if count > int64(perMinute) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}

		c.Next()
	}
}
