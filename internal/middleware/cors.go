package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const corsMaxAge = "600"

// CORS allows the configured browser origins to call the API. An empty list
// or a "*" entry allows any origin; credentials are only advertised for an
// origin that was echoed back.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
			continue
		}
		origins[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()

		if origin := c.GetHeader("Origin"); origin != "" {
			header.Add("Vary", "Origin")
			_, listed := origins[origin]
			if allowAll || listed {
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Credentials", "true")
				header.Set("Access-Control-Expose-Headers", requestIDHeader)
			}
		}

		if c.Request.Method == http.MethodOptions {
			header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+requestIDHeader)
			header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			header.Set("Access-Control-Max-Age", corsMaxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
