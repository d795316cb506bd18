package util

import (
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	ContextUserID  = "user_id"
	ContextEmail   = "user_email"
	ContextIsAdmin = "is_admin"
	ContextProfile = "profile"
)

// GetUserIDFromContext extracts the authenticated profile ID.
// If it is missing the request is answered with 401 and false is returned.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		RespondUnauthorized(c)
		return "", false
	}
	return userID, true
}

// GetEmailFromContext returns the authenticated email, or "" for anonymous requests
func GetEmailFromContext(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

// IsAdminContext reports whether the auth middleware flagged the caller as admin
func IsAdminContext(c *gin.Context) bool {
	return c.GetBool(ContextIsAdmin)
}
