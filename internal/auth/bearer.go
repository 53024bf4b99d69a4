package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/token"
)

const claimsKey = "facegate.claims"

// TokenParser validates an access token.
type TokenParser interface {
	Parse(s string) (*token.Claims, error)
}

// BearerMiddleware requires an access token issued after a successful
// verification and stores its claims on the request.
func BearerMiddleware(p TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := p.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by BearerMiddleware.
func ClaimsFrom(c *gin.Context) (*token.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.Claims)
	return claims, ok
}
