package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/auth"
	"go-realtime-events/internal/infrastructure/logger"
)

const identityKey = "identity"

// Authenticate rejects requests without a resolvable identity with 401 and stores
// the identity on the gin and request contexts otherwise.
func Authenticate(a auth.Authenticator, log logger.Logger) gin.HandlerFunc {
	l := log.WithField("component", "auth")
	return func(c *gin.Context) {
		id, err := a.Authenticate(c.Request)
		if err != nil {
			l.WithError(err).Debugf("rejected %s %s", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// Identity returns the identity stored by Authenticate.
func Identity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// RequireRole lets through only identities holding role. It must run after Authenticate.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !id.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
