package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/auth"
	"github.com/orkutrevival/backend/internal/util"
)

// TokenParser decodes bearer tokens
type TokenParser interface {
	ParseToken(token string) (*auth.Claims, error)
}

// BearerToken extracts the token from the Authorization header, falling
// back to the token query parameter used by websocket clients
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	if claims.UserID != "" {
		c.Set(util.ContextUserID, claims.UserID)
	}
	c.Set(util.ContextEmail, claims.Email)
	c.Set(util.ContextIsAdmin, claims.IsAdmin)
	c.Set("token_scope", claims.Scope)
}

// RequireAuth rejects requests without a valid profile token
func RequireAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			util.RespondUnauthorized(c, "no token provided")
			return
		}
		claims, err := tokens.ParseToken(token)
		if err != nil || claims.Scope != auth.ScopeUser {
			util.RespondUnauthorized(c, "invalid or expired token")
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth decodes a token when present and never rejects
func OptionalAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c); token != "" {
			if claims, err := tokens.ParseToken(token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}
