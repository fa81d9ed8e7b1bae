package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/ternarybob/arbor"
)

// ErrorHandler middleware recovers from any panics and handles errors
func ErrorHandler(logger arbor.ILogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error().
					Str("request_id", RequestIDFrom(c)).
					Str("path", c.Request.URL.Path).
					Str("panic", fmt.Sprint(err)).
					Str("stack", string(debug.Stack())).
					Msg("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "An unexpected error occurred",
					"kind":  "INTERNAL",
				})
			}
		}()

		c.Next()
	}
}
