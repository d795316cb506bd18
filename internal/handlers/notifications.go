package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/util"
)

// GetNotifications returns the caller's notifications with the unread count
// GET /api/notifications?unread=true&limit=&offset=
func (h *Handlers) GetNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	query := database.DB.Where("profile_id = ?", userID)
	if c.Query("unread") == "true" {
		query = query.Where("read = ?", false)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&notifications).Error; err != nil {
		util.RespondInternalError(c, "failed to load notifications", err)
		return
	}

	var unread int64
	err := database.DB.Model(&models.Notification{}).
		Where("profile_id = ? AND read = ?", userID, false).
		Count(&unread).Error
	if err != nil {
		util.RespondInternalError(c, "failed to count notifications", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": notifications,
		"unread":        unread,
	})
}

// MarkNotificationRead marks one notification read
// POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	result := database.DB.Model(&models.Notification{}).
		Where("id = ? AND profile_id = ?", c.Param("id"), userID).
		Update("read", true)
	if result.Error != nil {
		util.RespondInternalError(c, "failed to update notification", result.Error)
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "notification")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkAllNotificationsRead marks every notification of the caller read
// POST /api/notifications/read-all
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	result := database.DB.Model(&models.Notification{}).
		Where("profile_id = ? AND read = ?", userID, false).
		Update("read", true)
	if result.Error != nil {
		util.RespondInternalError(c, "failed to update notifications", result.Error)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"updated": result.RowsAffected,
	})
}
