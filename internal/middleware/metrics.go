package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leadership-program/nomination-api/internal/service"
)

// unmatchedRoute is the path label for requests that matched no registered route.
const unmatchedRoute = "unmatched"

// Metrics records request duration and count per route template.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
