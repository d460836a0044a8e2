package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const contextKey = "identity"

// RequireIdentity is the gin middleware guarding the REST surface. Requests
// without a valid bearer token are rejected with 401 before reaching the
// controller.
func RequireIdentity(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenSource(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := v.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}
		c.Set(contextKey, id)
		c.Next()
	}
}

// FromContext returns the identity stored by RequireIdentity.
func FromContext(c *gin.Context) (Identity, bool) {
	val, ok := c.Get(contextKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := val.(Identity)
	return id, ok
}
