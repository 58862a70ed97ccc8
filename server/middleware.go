package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/llamaedge/chat-core/internal/log"
	"github.com/llamaedge/chat-core/internal/requestctx"
)

// accessLog logs method/path/status/latency for every request that errored
// or returned >= 400, mirroring the access-log middleware's "only log
// noteworthy requests" rule.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		if status < 400 && len(c.Errors) == 0 {
			return
		}

		ctx := c.Request.Context()

		log.Error(ctx, "[ACCESS]",
			log.Int("status", status),
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.String("latency", time.Since(start).String()),
		)
	}
}

// recovery converts a panic inside a handler into a 500 response instead of
// crashing the process, logging the recovered value with a request_id tag
// a caller can correlate against other log lines.
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(c.Request.Context(), "server: panic recovered", log.Any("panic", r))
				c.AbortWithStatus(500)
			}
		}()

		c.Next()
	}
}

// withRequestID stamps a per-request correlation id, taken from the
// X-Request-Id header if the caller supplied one, onto the request context
// so every log line for this request carries it.
func withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}

		ctx := requestctx.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
