package middleware

import (
	"time"

	"github.com/aeo-optimizer/backend/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID assigns every request an id, reusing a well-formed incoming one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom returns the id set by RequestID, or "" outside it
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// StatsMiddleware tracks visitors and logs each request
func StatsMiddleware(stats *logging.Statistics, logger arbor.ILogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		stats.TrackVisitor(c.ClientIP())

		c.Next()

		logger.WithCorrelationId(RequestIDFrom(c)).Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Msg("Request handled")
	}
}
