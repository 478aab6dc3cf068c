package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"camtrap/internal/models"
	"camtrap/internal/security"
	"camtrap/internal/service"
)

const (
	ContextUser   = "current_user"
	ContextClaims = "access_claims"
)

// TokenAuthenticator resolves a bearer token to its user.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, *security.AccessClaims, error)
}

func Auth(auth TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		user, claims, err := auth.Authenticate(c.Request.Context(), tokenStr)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrUserSuspended):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user_inactive"})
			return
		case errors.Is(err, service.ErrTokenRevoked):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_revoked"})
			return
		case errors.Is(err, service.ErrInvalidCredentials):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		default:
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth_unavailable"})
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUser, user)

		c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

// CurrentClaims returns the token claims stored by Auth.
func CurrentClaims(c *gin.Context) (*security.AccessClaims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*security.AccessClaims)
	return claims, ok && claims != nil
}
