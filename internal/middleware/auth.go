package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/auth"
)

const principalKey = "principal"

// AuthMiddleware validates the Authorization header and attaches the
// authenticated Principal to the request context.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := verifier.VerifyToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFromContext returns the Principal set by AuthMiddleware.
func PrincipalFromContext(c *gin.Context) (auth.Principal, bool) {
	val, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	principal, ok := val.(auth.Principal)
	return principal, ok
}
