package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/auth"
	apierrors "github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/util"
	"go.uber.org/zap"
)

// AdminLoginRequest is the body of AdminLogin
type AdminLoginRequest struct {
	Email  string `json:"email"`
	Action string `json:"action"`
	Code   string `json:"code"`
}

// AdminLogin issues an admin token to a configured administrator. When a
// TOTP secret is configured the current code is required too.
// POST /api/admin/login
func (h *Handlers) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}
	email := util.NormalizeEmail(req.Email)
	if email == "" {
		util.RespondValidationError(c, "email", "email is required")
		return
	}

	admins := h.auth.Admins()
	if authorized, reason := admins.RequireAdmin(email); !authorized {
		logger.Audit("FAILED_LOGIN_ATTEMPT", email, zap.String("reason", reason), logger.WithIP(c.ClientIP()))
		util.RespondWithAPIError(c, apierrors.Forbidden(reason).
			WithExtra("is_admin", false).
			WithExtra("email", email).
			WithExtra("timestamp", time.Now().UTC()))
		return
	}

	if admins.SecondFactorRequired() && !admins.VerifySecondFactor(req.Code, time.Now()) {
		logger.Audit("FAILED_LOGIN_ATTEMPT", email, zap.String("reason", "invalid second factor"), logger.WithIP(c.ClientIP()))
		util.RespondWithAPIError(c, apierrors.Unauthorized("a valid authenticator code is required").
			WithExtra("second_factor_required", true))
		return
	}

	token, expiresAt, err := h.auth.GenerateAdminToken(email)
	if err != nil {
		util.RespondInternalError(c, "failed to issue admin token", err)
		return
	}

	logger.Audit("SUCCESSFUL_LOGIN", email, zap.String("action", req.Action), logger.WithIP(c.ClientIP()))

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"is_admin":   true,
		"token":      token,
		"expires_at": expiresAt,
		"user": gin.H{
			"email":    email,
			"is_admin": true,
			"role":     "admin",
		},
		"permissions": auth.AdminPermissions,
		"message":     fmt.Sprintf("Bem-vindo, administrador! Login autorizado para %s", email),
		"timestamp":   time.Now().UTC(),
	})
}

// AdminStatus reports whether an email is an administrator
// GET /api/admin/login?email=
func (h *Handlers) AdminStatus(c *gin.Context) {
	email := util.NormalizeEmail(c.Query("email"))
	if email == "" {
		util.RespondValidationError(c, "email", "email query parameter is required")
		return
	}

	admins := h.auth.Admins()
	isAdmin := admins.IsAdmin(email)
	message := "Email não tem permissões de administrador"
	if isAdmin {
		message = "Email tem permissões de administrador"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":                true,
		"email":                  email,
		"is_admin":               isAdmin,
		"admins_configured":      admins.Configured(),
		"second_factor_required": admins.SecondFactorRequired(),
		"message":                message,
		"timestamp":              time.Now().UTC(),
	})
}
