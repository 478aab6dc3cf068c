package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500. A media stream that already
// sent its headers is cut off instead, since a JSON body would corrupt it.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			event := log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("method", c.Request.Method).
				Str("route", c.FullPath()).
				Str("request_id", GetRequestID(c))
			if user, ok := CurrentUser(c); ok {
				event = event.Str("user_id", user.ID)
			}
			event.Msg("panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "internal_server_error",
				"requestId": GetRequestID(c),
			})
		}()
		c.Next()
	}
}
