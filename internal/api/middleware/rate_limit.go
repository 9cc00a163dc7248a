package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cryptogate/gateway_service/pkg/logger"
	"github.com/cryptogate/gateway_service/pkg/ratelimit"
)

// TieredChecker is satisfied by *ratelimit.TieredLimiter
type TieredChecker interface {
	Check(ctx context.Context, ip, userID, endpoint string) (*ratelimit.CheckResult, error)
}

// TieredRateLimiting applies the Redis-backed IP, user and endpoint tiers
// shared across gateway instances. A failed check lets the request through.
func TieredRateLimiting(limiter TieredChecker, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.Request.Method + " " + routeLabel(c)

		result, err := limiter.Check(c.Request.Context(), c.ClientIP(), c.GetString("user_id"), endpoint)
		if err != nil {
			log.Warn("Rate limit check failed", "error", err, "endpoint", endpoint)
			c.Next()
			return
		}

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":        "RATE_LIMIT_EXCEEDED",
				"message":     "Rate limit exceeded",
				"limited_by":  result.LimitedBy,
				"retry_after": retryAfter,
				"request_id":  c.GetString("request_id"),
			})
			return
		}

		if result.Remaining >= 0 {
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		}
		c.Next()
	}
}
