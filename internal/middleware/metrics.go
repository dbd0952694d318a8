package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"relay-backend/internal/metrics"
)

// RequestMetrics records per-route request counts and latency. Unmatched
// routes are bucketed together to keep label cardinality bounded.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(started).Seconds())
	}
}
