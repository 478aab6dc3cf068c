package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"camtrap/internal/security"
)

const ContextSignedPath = "signed_path"

// SignedMedia admits requests whose path, exp and sig query parameters
// carry a valid signature. It stands in for Auth on media URLs that end up
// in <img> tags.
func SignedMedia(signer *security.URLSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Query("path")
		err := signer.Verify(path, c.Query("exp"), c.Query("sig"))
		switch {
		case err == nil:
		case errors.Is(err, security.ErrSignatureMissing):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "signature_required"})
			return
		case errors.Is(err, security.ErrSignatureExpired):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "signature_expired"})
			return
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid_signature"})
			return
		}

		c.Set(ContextSignedPath, path)
		c.Next()
	}
}
