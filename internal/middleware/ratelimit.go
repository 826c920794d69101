package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/metrics"
)

type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit allows at most requests calls per window per client IP and
// route. When the counter store fails the request is let through.
func RateLimit(counter Counter, requests int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if requests <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		key := "rl:" + route + ":" + c.ClientIP()

		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		count, err := counter.Incr(ctx, key, window)
		cancel()
		if err != nil {
			logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requests))
		remaining := int64(requests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(requests) {
			metrics.IncrementRateLimited(route)
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			abortJSON(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests, try again later")
			return
		}

		c.Next()
	}
}
