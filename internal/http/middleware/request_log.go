package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/beliefpath-sync/internal/platform/ctxutil"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

// RequestLogger writes one line per finished request. Successful liveness
// probes drop to debug.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := requestFields(c, status, time.Since(start))
		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		case c.FullPath() == "/health":
			log.Debug("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

func requestFields(c *gin.Context, status int, dur time.Duration) []interface{} {
	fields := []interface{}{
		"method", c.Request.Method,
		"route", routeLabel(c),
		"path", c.Request.URL.Path,
		"status", status,
		"duration_ms", dur.Milliseconds(),
		"bytes_in", c.Request.ContentLength,
		"bytes_out", c.Writer.Size(),
	}
	ctx := c.Request.Context()
	fields = append(fields, ctxutil.GetTraceData(ctx).LogFields()...)
	if id := ctxutil.GetIdentity(ctx); id != nil {
		fields = append(fields, "external_id", id.ExternalID, "identity_source", string(id.Source))
	}
	if len(c.Errors) > 0 {
		fields = append(fields, "errors", c.Errors.String())
	}
	return fields
}
