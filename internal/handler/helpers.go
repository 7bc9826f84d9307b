package handler

import (
	"github.com/gin-gonic/gin"

	"driftwood/itemvault/internal/auth"
	"driftwood/itemvault/internal/handler/middleware"
)

func claimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	val, ok := c.Get(middleware.ContextKeyClaims)
	if !ok {
		return nil, false
	}
	claims, ok := val.(*auth.Claims)
	return claims, ok
}

// actorFromContext resolves the attribution identity for audited writes:
// the verified claims' username, or "admin" for shared-secret requests.
func actorFromContext(c *gin.Context) (string, bool) {
	if claims, ok := claimsFromContext(c); ok {
		return claims.Attribution(), true
	}
	if c.GetBool(middleware.ContextKeySecretAuthed) {
		return "admin", true
	}
	return "", false
}
