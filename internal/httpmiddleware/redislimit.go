package httpmiddleware

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces per-IP limits with a fixed one-minute window shared
// across instances. It fails open when Redis is unreachable.
type RedisLimiter struct {
	client    *redis.Client
	perMinute int
}

// NewRedisLimiter creates a limiter allowing perMinute requests per IP.
func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	return &RedisLimiter{client: client, perMinute: perMinute}
}

// GinMiddleware returns a gin handler enforcing per-IP limits.
func (l *RedisLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		key := "ratelimit:" + ip + ":" + time.Now().UTC().Format("200601021504")

		ctx := c.Request.Context()
		n, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			log.Printf("rate limit check failed, allowing request: %v", err)
			c.Next()
			return
		}
		if n == 1 {
			l.client.Expire(ctx, key, time.Minute)
		}
		if n > int64(l.perMinute) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}
