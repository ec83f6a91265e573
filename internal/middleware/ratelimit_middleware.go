// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"context"
	"net/http"
	"time"

	"vaspay-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Limiter is the slice of session.RateLimiter the middleware needs.
type Limiter interface {
	Allow(ctx context.Context, identityID int64, endpoint string, maxRequests int64, window time.Duration) (bool, error)
	IsAccountTemporarilyLocked(ctx context.Context, identityID int64) (bool, time.Duration, error)
	LockAccount(ctx context.Context, identityID int64, duration time.Duration) error
}

// RateLimitMiddleware caps how often a user can hit money-moving
// endpoints. Blowing through the window locks the account for a cool-off
// of the same length, so a runaway client is rejected cheaply instead of
// incrementing counters on every retry. Must run after Auth().
func RateLimitMiddleware(limiter Limiter, endpoint string, maxRequests int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID := MustGetIdentityID(c)

		locked, ttl, err := limiter.IsAccountTemporarilyLocked(c.Request.Context(), identityID)
		if err == nil && locked {
			response.Error(c, http.StatusTooManyRequests, "account temporarily locked", nil, map[string]interface{}{
				"retry_after_seconds": int(ttl.Seconds()),
			})
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), identityID, endpoint, maxRequests, window)
		if err != nil {
			// Rate limiting is advisory; a Redis hiccup must not block purchases.
			c.Next()
			return
		}
		if !allowed {
			_ = limiter.LockAccount(c.Request.Context(), identityID, window)
			response.Error(c, http.StatusTooManyRequests, "too many requests, slow down", nil, map[string]interface{}{
				"retry_after_seconds": int(window.Seconds()),
			})
			return
		}

		c.Next()
	}
}
