package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/util"
	"github.com/orkutrevival/backend/internal/websocket"
	"go.uber.org/zap"
)

const (
	messageMaxLength    = 2000
	conversationLimit   = 50
	conversationMaxPage = 200
)

// SendMessageRequest is the body of SendMessage
type SendMessageRequest struct {
	ToProfileID string `json:"to_profile_id"`
	Content     string `json:"content"`
}

// SendMessage delivers a direct message
// POST /api/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToProfileID == "" {
		util.RespondValidationError(c, "to_profile_id", "to_profile_id is required")
		return
	}
	if err := util.ValidateLength("content", req.Content, 1, messageMaxLength); err != nil {
		util.RespondValidationError(c, "content", err.Error())
		return
	}
	if req.ToProfileID == userID {
		util.RespondBadRequest(c, "you cannot message yourself")
		return
	}

	var recipient models.Profile
	if util.HandleDBError(c, database.DB.Select("id").First(&recipient, "id = ?", req.ToProfileID).Error, "profile") {
		return
	}

	message := models.Message{
		FromProfileID: userID,
		ToProfileID:   recipient.ID,
		Content:       strings.TrimSpace(req.Content),
	}
	if err := database.DB.Create(&message).Error; err != nil {
		util.RespondInternalError(c, "failed to send message", err)
		return
	}

	logger.Log.Debug("Message sent",
		logger.WithUserID(userID),
		zap.String("to_profile_id", recipient.ID))

	h.notify(recipient.ID, websocket.MessageTypeMessageNew, message)
	h.notify(userID, websocket.MessageTypeMessageNew, message)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": message,
	})
}

// GetConversation returns the newest messages exchanged with a profile,
// oldest first
// GET /api/messages/:profileId?limit=
func (h *Handlers) GetConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	otherID := c.Param("profileId")
	limit, _ := util.ParsePagination(c.Query("limit"), "", conversationLimit, conversationMaxPage)

	var messages []models.Message
	err := database.DB.
		Where("(from_profile_id = ? AND to_profile_id = ?) OR (from_profile_id = ? AND to_profile_id = ?)",
			userID, otherID, otherID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		util.RespondInternalError(c, "failed to load conversation", err)
		return
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	var unread int64
	err = database.DB.Model(&models.Message{}).
		Where("from_profile_id = ? AND to_profile_id = ? AND read_at IS NULL", otherID, userID).
		Count(&unread).Error
	if err != nil {
		util.RespondInternalError(c, "failed to count unread messages", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": messages,
		"unread":   unread,
	})
}

// MarkConversationRead marks every message received from a profile as read
// POST /api/messages/:profileId/read
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	otherID := c.Param("profileId")

	now := time.Now().UTC()
	result := database.DB.Model(&models.Message{}).
		Where("from_profile_id = ? AND to_profile_id = ? AND read_at IS NULL", otherID, userID).
		Update("read_at", now)
	if result.Error != nil {
		util.RespondInternalError(c, "failed to mark messages read", result.Error)
		return
	}

	if result.RowsAffected > 0 {
		h.notify(otherID, websocket.MessageTypeMessageRead, gin.H{
			"reader_id": userID,
			"read_at":   now,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"updated": result.RowsAffected,
	})
}
