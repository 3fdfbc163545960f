package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-maskinen/backend/metrics"
)

// RequestRecorder receives one call per finished request
type RequestRecorder interface {
	RecordRequest(status int)
}

// StatsMiddleware feeds request counts and latencies to Prometheus and to
// the persisted monthly statistics
func StatsMiddleware(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())

		if recorder != nil {
			recorder.RecordRequest(status)
		}
	}
}
