package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/customeros/sitestack/internal/logger"
	"github.com/customeros/sitestack/internal/ratelimit"
)

// RateLimitMiddleware throttles requests sharing the key returned by keyFn.
// A store failure lets the request through.
func RateLimitMiddleware(limiter *ratelimit.Limiter, keyFn func(c *gin.Context) string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), keyFn(c))
		if err != nil {
			log.Warnf("Rate limit check failed: %v", err)
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":        "Too many verification requests",
				"retryAfterMs": retryAfter.Milliseconds(),
			})
			return
		}

		c.Next()
	}
}

func DomainKey(prefix string) func(c *gin.Context) string {
	return func(c *gin.Context) string {
		return prefix + ":" + c.Param("id")
	}
}
