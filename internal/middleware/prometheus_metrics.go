package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/metrics"
)

// MetricsMiddleware collects HTTP metrics for Prometheus. Routes are
// labelled by their pattern so path parameters do not explode cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	m := metrics.Get()

	return func(c *gin.Context) {
		m.HTTPActiveRequests.Inc()
		defer m.HTTPActiveRequests.Dec()

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		if c.Writer.Status() == 429 {
			m.RateLimitedTotal.WithLabelValues(path).Inc()
		}
	}
}
