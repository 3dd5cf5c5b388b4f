package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-admin-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records request metrics labelled by route template. Requests that match no
// route share one label so probing for user or session ids cannot grow the series set.
// Scrapes of skipPath are not recorded.
func Metrics(metricsSvc *service.MetricsService, skipPath string) gin.HandlerFunc {
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
		if skipPath != "" && path == skipPath {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
