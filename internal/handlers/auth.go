package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/auth"
	apierrors "github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/util"
	"go.uber.org/zap"
)

// Register creates a profile with email and password
// POST /api/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithAPIError(c, apierrors.BadRequest("invalid registration request").WithDetails(err.Error()))
		return
	}

	resp, err := h.auth.Register(req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			util.RespondWithAPIError(c, apierrors.AlreadyExists("account with this email"))
		case errors.Is(err, auth.ErrUsernameExists):
			util.RespondConflict(c, "username already taken")
		default:
			util.RespondInternalError(c, "failed to create account", err)
		}
		return
	}

	h.searcher().IndexProfile(c.Request.Context(), resp.User)
	logger.Log.Info("Profile registered",
		logger.WithUserID(resp.User.ID),
		zap.String("username", resp.User.Username))

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"auth":    resp,
	})
}

// Login authenticates with email and password
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithAPIError(c, apierrors.BadRequest("invalid login request").WithDetails(err.Error()))
		return
	}

	resp, err := h.auth.Login(req)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
			logger.Log.Warn("Failed login", zap.String("email", util.NormalizeEmail(req.Email)), logger.WithIP(c.ClientIP()))
			util.RespondUnauthorized(c, "invalid email or password")
			return
		}
		util.RespondInternalError(c, "login failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"auth":    resp,
	})
}
