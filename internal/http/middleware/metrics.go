package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/beliefpath-sync/internal/observability"
)

const unmatchedRoute = "unmatched"

// Metrics records one observation per request, labelled by the route
// template so arbitrary 404 paths cannot blow up label cardinality.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.APIInflightInc()
		defer m.APIInflightDec()
		start := time.Now()
		c.Next()
		m.ObserveAPI(c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}
