package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/logger"
)

// RequestLogger writes one access log entry per request once it completes. For event
// streams that is when the client goes away.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	l := log.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := l.WithFields(logger.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
