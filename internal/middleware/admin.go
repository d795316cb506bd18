package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/util"
)

// RequireAdmin accepts admin tokens and profile tokens whose email is an
// administrator. Admin status comes from the registry on every request,
// so a removed admin loses access immediately.
func RequireAdmin(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			util.RespondUnauthorized(c, "admin token required")
			return
		}
		claims, err := tokens.ParseToken(token)
		if err != nil {
			util.RespondUnauthorized(c, "invalid or expired token")
			return
		}
		if !claims.IsAdmin {
			logger.Audit("FORBIDDEN_ADMIN_REQUEST", claims.Email)
			util.RespondForbidden(c, "admin access required")
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}
