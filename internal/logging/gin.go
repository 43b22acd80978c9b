package logging

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// GinLogger emits one slog record per request. Server errors are logged at
// error level, client errors at warn.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			Error(ctx, "http request", attrs...)
		case status >= 400:
			Warn(ctx, "http request", attrs...)
		default:
			Info(ctx, "http request", attrs...)
		}
	}
}
