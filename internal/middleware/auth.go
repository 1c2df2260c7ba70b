package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"livestream-chat/internal/auth"
	"livestream-chat/internal/errs"
	"livestream-chat/internal/logging"
)

// PrincipalKey is the gin context key holding the authenticated auth.Principal.
const PrincipalKey = "principal"

// AuthMiddleware validates the bearer token in the Authorization header.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization", "code": errs.CodeUnauthenticated})
			return
		}

		token := auth.BearerToken(header)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header", "code": errs.CodeUnauthenticated})
			return
		}

		principal, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": errs.CodeUnauthenticated})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Set(logging.FieldUserID, principal.UserID)
		c.Next()
	}
}

// RequireModerator rejects principals without a moderator or admin role.
func RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok || !principal.IsModerator() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errs.ErrForbidden.Message, "code": errs.CodeForbidden})
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal set by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	val, ok := c.Get(PrincipalKey)
	if !ok {
		return auth.Principal{}, false
	}
	principal, ok := val.(auth.Principal)
	return principal, ok
}
