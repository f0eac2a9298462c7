package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/internal/metrics"
)

// Logger middleware logs request details and records request metrics
func Logger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.LogHTTPRequest(c.Request.Method, path, c.ClientIP(), status, latency)
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusClass(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(latency.Seconds())
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
