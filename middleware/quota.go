package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-maskinen/backend/logging"
	"github.com/seo-maskinen/backend/metrics"
	"github.com/seo-maskinen/backend/ratelimit"
)

// UserQuota enforces the per-user analysis limit. It must run after
// authentication. When the limiter backend fails the request is let through.
func UserQuota(l ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUser(c)
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, CodeAuthentication, msgNoAuth)
			return
		}

		d, err := l.Allow(c.Request.Context(), user.ID)
		if err != nil {
			logging.FromContext(c.Request.Context()).Error("rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))

		if !d.Allowed {
			wait := int(math.Ceil(d.RetryAfter(time.Now()).Seconds()))
			c.Header("Retry-After", strconv.Itoa(wait))
			metrics.RateLimited.WithLabelValues("user").Inc()
			AbortWithError(c, http.StatusTooManyRequests, CodeRateLimited,
				fmt.Sprintf("För många förfrågningar. Försök igen om %d sekunder.", wait))
			return
		}
		c.Next()
	}
}
