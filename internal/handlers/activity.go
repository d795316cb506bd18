package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/ledger"
	"github.com/orkutrevival/backend/internal/util"
)

func (h *Handlers) ledgerAvailable(c *gin.Context) bool {
	if h.ledger == nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("activity ledger"))
		return false
	}
	return true
}

// remoteFailureMessage explains a failed mirror write in terms an operator
// can act on
func remoteFailureMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrBadToken):
		return "GitHub token is invalid or expired"
	case errors.Is(err, ledger.ErrForbidden):
		return "GitHub token has no permission to write to the repository"
	case errors.Is(err, ledger.ErrRepoNotFound):
		return "GitHub repository not found"
	case errors.Is(err, ledger.ErrConflict):
		return "GitHub file kept changing while writing"
	case errors.Is(err, ledger.ErrRejected):
		return "GitHub rejected the write"
	}
	return "failed to write activity to GitHub"
}

// RecordActivity stores an activity and mirrors it to GitHub
// POST /api/user-activity
func (h *Handlers) RecordActivity(c *gin.Context) {
	if !h.ledgerAvailable(c) {
		return
	}

	var req ledger.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	result, err := h.ledger.Record(c.Request.Context(), req)
	if err != nil {
		var exhausted *ledger.ExhaustedError
		var remote *ledger.RemoteError
		switch {
		case errors.Is(err, ledger.ErrInvalidEntry):
			util.RespondBadRequest(c, "userId and action are required")
		case errors.As(err, &exhausted):
			util.RespondWithAPIError(c, apierrors.AttemptsExhausted(exhausted.Attempts, exhausted.MaxAttempts).
				WithExtra("canTryAgain", false).
				WithExtra("localDataSaved", exhausted.LocalDataSaved))
		case errors.As(err, &remote):
			util.RespondWithAPIError(c, apierrors.Upstream("github", remoteFailureMessage(remote.Err)).
				WithDetails(remote.Err.Error()).
				WithExtra("attempts", remote.Attempts).
				WithExtra("maxAttempts", remote.MaxAttempts).
				WithExtra("willRetry", remote.WillRetry()).
				WithExtra("localDataSaved", true))
		default:
			util.RespondInternalError(c, "failed to record activity", err)
		}
		return
	}

	body := gin.H{
		"success":   true,
		"mode":      result.Mode,
		"entry":     result.Entry,
		"duplicate": result.Duplicate,
		"attempts":  result.Attempts,
	}
	if result.Commit != nil {
		body["githubResult"] = gin.H{
			"commitUrl": result.Commit.CommitURL,
			"sha":       result.Commit.SHA,
			"message":   result.Commit.Message,
			"timestamp": result.Commit.Timestamp,
		}
	}
	if result.Mode == ledger.ModeLocal {
		body["message"] = "GitHub is not configured, activity stored locally"
	}
	c.JSON(http.StatusOK, body)
}

// GetActivityStatus reports the attempt counter
// GET /api/user-activity
func (h *Handlers) GetActivityStatus(c *gin.Context) {
	if !h.ledgerAvailable(c) {
		return
	}

	status := h.ledger.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"currentAttempts": status.Attempts,
		"maxAttempts":     status.MaxAttempts,
		"canTryAgain":     status.CanTryAgain,
		"lastResetTime":   status.LastResetTime,
		"lastAttemptTime": status.LastAttemptTime,
		"message":         status.Remaining(),
		"environment": gin.H{
			"githubConfigured": status.GitHubConfigured,
			"redisBacked":      status.RedisBacked,
			"environment":      status.Environment,
		},
	})
}

// GetActivityStats summarises the local ledger
// GET /api/user-activity/stats
func (h *Handlers) GetActivityStats(c *gin.Context) {
	if !h.ledgerAvailable(c) {
		return
	}

	stats, breaker, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		util.RespondInternalError(c, "failed to load activity stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"totalActivities": stats.TotalActivities,
		"uniqueUsers":     stats.UniqueUsers,
		"actionCounts":    stats.ActionCounts,
		"attemptCount":    breaker.Attempts,
		"lastResetTime":   breaker.LastResetTime,
		"lastAttemptTime": breaker.LastAttemptTime,
	})
}

// GetUserActivity lists one user's activities, newest first
// GET /api/user-activity/:userId
func (h *Handlers) GetUserActivity(c *gin.Context) {
	if !h.ledgerAvailable(c) {
		return
	}

	userID := c.Param("userId")
	entries, err := h.ledger.ForUser(c.Request.Context(), userID, util.ParseInt(c.Query("limit"), 0))
	if err != nil {
		util.RespondInternalError(c, "failed to load activities", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"userId":     userID,
		"activities": entries,
		"count":      len(entries),
	})
}

// ResetActivityAttempts clears the attempt counter
// POST /api/user-activity-reset
func (h *Handlers) ResetActivityAttempts(c *gin.Context) {
	if !h.ledgerAvailable(c) {
		return
	}

	at := h.ledger.Reset(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"currentAttempts": 0,
		"resetTime":       at.UTC().Format(time.RFC3339),
		"message":         "Attempt counter reset",
	})
}

// MethodNotAllowed answers verbs an endpoint does not support
func (h *Handlers) MethodNotAllowed(c *gin.Context) {
	c.Header("Allow", http.MethodPost)
	util.RespondWithAPIError(c, apierrors.MethodNotAllowed(c.Request.Method))
}
