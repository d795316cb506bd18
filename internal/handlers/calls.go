package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/calls"
	apierrors "github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/util"
)

// respondCallError maps call service errors to HTTP errors
func respondCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrInvalidCallType):
		util.RespondValidationError(c, "call_type", err.Error())
	case errors.Is(err, calls.ErrSelfCall):
		util.RespondBadRequest(c, err.Error())
	case errors.Is(err, calls.ErrCallerNotFound), errors.Is(err, calls.ErrReceiverNotFound):
		util.RespondNotFound(c, "profile")
	case errors.Is(err, calls.ErrCallNotFound):
		util.RespondNotFound(c, "call")
	case errors.Is(err, calls.ErrBusy):
		util.RespondWithAPIError(c, apierrors.Conflict(err.Error()).WithExtra("busy", true))
	case errors.Is(err, calls.ErrNotParticipant):
		util.RespondForbidden(c, err.Error())
	case errors.Is(err, calls.ErrInvalidTransition):
		util.RespondConflict(c, err.Error())
	default:
		util.RespondInternalError(c, "call operation failed", err)
	}
}

func (h *Handlers) callsAvailable(c *gin.Context) bool {
	if h.calls == nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("calls"))
		return false
	}
	return true
}

// StartCallRequest is the body of StartCall
type StartCallRequest struct {
	ReceiverID string `json:"receiver_id"`
	CallType   string `json:"call_type"`
}

// StartCall rings another profile
// POST /api/calls
func (h *Handlers) StartCall(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok || !h.callsAvailable(c) {
		return
	}

	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReceiverID == "" {
		util.RespondValidationError(c, "receiver_id", "receiver_id is required")
		return
	}

	call, err := h.calls.Start(c.Request.Context(), userID, req.ReceiverID, models.CallType(req.CallType))
	if err != nil {
		respondCallError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"call":         call,
		"ring_timeout": int(h.calls.RingTimeout().Seconds()),
	})
}

// AcceptCall answers a ringing call
// POST /api/calls/:id/accept
func (h *Handlers) AcceptCall(c *gin.Context) {
	h.transitionCall(c, h.calls.Accept)
}

// RejectCall declines a ringing call
// POST /api/calls/:id/reject
func (h *Handlers) RejectCall(c *gin.Context) {
	h.transitionCall(c, h.calls.Reject)
}

// MissCall marks a ringing call as missed
// POST /api/calls/:id/missed
func (h *Handlers) MissCall(c *gin.Context) {
	h.transitionCall(c, h.calls.MarkMissed)
}

type callTransition func(ctx context.Context, callID, actorID string) (*models.Call, error)

func (h *Handlers) transitionCall(c *gin.Context, apply callTransition) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok || !h.callsAvailable(c) {
		return
	}

	call, err := apply(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"call":    call,
	})
}

// EndCallRequest is the optional body of EndCall
type EndCallRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// EndCall hangs up a ringing or connected call
// POST /api/calls/:id/end
func (h *Handlers) EndCall(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok || !h.callsAvailable(c) {
		return
	}

	var req EndCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			util.RespondBadRequest(c, "invalid request body")
			return
		}
	}
	if req.DurationSeconds < 0 {
		util.RespondValidationError(c, "duration_seconds", "duration_seconds cannot be negative")
		return
	}

	call, err := h.calls.End(c.Request.Context(), c.Param("id"), userID, req.DurationSeconds)
	if err != nil {
		respondCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"call":               call,
		"duration_formatted": calls.FormatDuration(call.DurationSeconds),
	})
}

// GetCall returns one call the caller took part in
// GET /api/calls/:id
func (h *Handlers) GetCall(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok || !h.callsAvailable(c) {
		return
	}

	call, err := h.calls.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"call":    call,
	})
}

// GetCallHistory lists the caller's recent calls
// GET /api/calls/history?limit=
func (h *Handlers) GetCallHistory(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok || !h.callsAvailable(c) {
		return
	}

	history, err := h.calls.History(c.Request.Context(), userID, util.ParseInt(c.Query("limit"), 50))
	if err != nil {
		respondCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"calls":   history,
		"count":   len(history),
	})
}

// GetActiveCall returns the caller's live call, or null
// GET /api/calls/active
func (h *Handlers) GetActiveCall(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok || !h.callsAvailable(c) {
		return
	}

	call, err := h.calls.Active(c.Request.Context(), userID)
	if errors.Is(err, calls.ErrCallNotFound) {
		c.JSON(http.StatusOK, gin.H{"success": true, "call": nil})
		return
	}
	if err != nil {
		respondCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"call":    call,
	})
}
