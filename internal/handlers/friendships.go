package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/metrics"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/util"
	"github.com/orkutrevival/backend/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errFriendshipChanged = errors.New("friendship was answered concurrently")
	errOwnRequest        = errors.New("request was sent by the caller")
)

// Friend is one accepted friendship seen from the caller's side
type Friend struct {
	FriendshipID   string    `json:"friendship_id"`
	FriendID       string    `json:"friend_id"`
	DisplayName    string    `json:"display_name"`
	Username       string    `json:"username"`
	PhotoURL       string    `json:"photo_url"`
	Bio            string    `json:"bio"`
	FriendshipDate time.Time `json:"friendship_date"`
}

// PendingRequest is a pending friendship with the other side's profile
type PendingRequest struct {
	ID        string                 `json:"id"`
	Status    string                 `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	Profile   *models.ProfileSummary `json:"profile"`
}

// ListFriendships returns the caller's friends and pending requests
// GET /api/friendships?type=all|friends|pending_received|pending_sent
func (h *Handlers) ListFriendships(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	listType := c.DefaultQuery("type", "all")
	switch listType {
	case "all", "friends", "pending_received", "pending_sent":
	default:
		util.RespondValidationError(c, "type", "type must be all, friends, pending_received or pending_sent")
		return
	}

	data := gin.H{}

	if listType == "all" || listType == "friends" {
		var rows []models.Friendship
		err := database.DB.Preload("Requester").Preload("Addressee").
			Where("(requester_id = ? OR addressee_id = ?) AND status = ?", userID, userID, models.FriendshipAccepted).
			Order("updated_at DESC").
			Find(&rows).Error
		if err != nil {
			util.RespondInternalError(c, "failed to load friends", err)
			return
		}
		friends := make([]Friend, 0, len(rows))
		for _, f := range rows {
			other := f.Requester
			if f.RequesterID == userID {
				other = f.Addressee
			}
			if other == nil {
				continue
			}
			friends = append(friends, Friend{
				FriendshipID:   f.ID,
				FriendID:       other.ID,
				DisplayName:    other.DisplayName,
				Username:       other.Username,
				PhotoURL:       other.PhotoURL,
				Bio:            other.Bio,
				FriendshipDate: f.UpdatedAt,
			})
		}
		data["friends"] = friends
	}

	if listType == "all" || listType == "pending_received" {
		pending, err := pendingRequests("addressee_id = ?", userID, "Requester")
		if err != nil {
			util.RespondInternalError(c, "failed to load friend requests", err)
			return
		}
		data["pending_received"] = pending
	}

	if listType == "all" || listType == "pending_sent" {
		pending, err := pendingRequests("requester_id = ?", userID, "Addressee")
		if err != nil {
			util.RespondInternalError(c, "failed to load friend requests", err)
			return
		}
		data["pending_sent"] = pending
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func pendingRequests(where, userID, preload string) ([]PendingRequest, error) {
	var rows []models.Friendship
	err := database.DB.Preload(preload).
		Where(where, userID).
		Where("status = ?", models.FriendshipPending).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]PendingRequest, 0, len(rows))
	for _, f := range rows {
		other := f.Requester
		if preload == "Addressee" {
			other = f.Addressee
		}
		req := PendingRequest{ID: f.ID, Status: string(f.Status), CreatedAt: f.CreatedAt}
		if other != nil {
			summary := other.Summary()
			req.Profile = &summary
		}
		out = append(out, req)
	}
	return out, nil
}

// SendFriendRequestRequest is the body of SendFriendRequest
type SendFriendRequestRequest struct {
	AddresseeID string `json:"addressee_id"`
}

// SendFriendRequest creates a pending friendship and notifies the addressee
// POST /api/friendships
func (h *Handlers) SendFriendRequest(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AddresseeID == "" {
		util.RespondValidationError(c, "addressee_id", "addressee_id is required")
		return
	}
	if req.AddresseeID == userID {
		util.RespondBadRequest(c, "you cannot send a friend request to yourself")
		return
	}

	var addressee models.Profile
	if util.HandleDBError(c, database.DB.First(&addressee, "id = ?", req.AddresseeID).Error, "profile") {
		return
	}
	var requester models.Profile
	if util.HandleDBError(c, database.DB.First(&requester, "id = ?", userID).Error, "profile") {
		return
	}

	var existing models.Friendship
	err := database.DB.Where("pair_key = ?", models.FriendshipPairKey(userID, addressee.ID)).First(&existing).Error
	if err == nil {
		respondExistingFriendship(c, &existing)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondInternalError(c, "failed to check friendship", err)
		return
	}

	friendship := models.Friendship{
		RequesterID: userID,
		AddresseeID: addressee.ID,
		Status:      models.FriendshipPending,
	}
	var notification models.Notification
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&friendship).Error; err != nil {
			return err
		}
		notification = models.Notification{
			ProfileID:     addressee.ID,
			FromProfileID: userID,
			Type:          models.NotificationFriendRequest,
			Title:         "Nova solicitação de amizade",
			Message:       fmt.Sprintf("%s quer ser seu amigo", requester.Name()),
			ActionURL:     "/amigos",
			RelatedID:     friendship.ID,
		}
		return tx.Create(&notification).Error
	})
	if err != nil {
		// a concurrent request for the same pair wins the unique pair key
		if database.DB.Where("pair_key = ?", models.FriendshipPairKey(userID, addressee.ID)).First(&existing).Error == nil {
			respondExistingFriendship(c, &existing)
			return
		}
		util.RespondInternalError(c, "failed to send friend request", err)
		return
	}

	metrics.Get().FriendshipEventsTotal.WithLabelValues("sent").Inc()
	logger.Log.Info("Friend request sent",
		logger.WithFriendshipID(friendship.ID),
		logger.WithUserID(userID),
		zap.String("addressee_id", addressee.ID))

	h.notify(addressee.ID, websocket.MessageTypeFriendRequest, gin.H{
		"friendship_id": friendship.ID,
		"from":          requester.Summary(),
	})
	h.notify(addressee.ID, websocket.MessageTypeNotification, notification)

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"friendship": friendship,
		"message":    fmt.Sprintf("Solicitação de amizade enviada para %s", addressee.Name()),
	})
}

func respondExistingFriendship(c *gin.Context, existing *models.Friendship) {
	switch existing.Status {
	case models.FriendshipAccepted:
		util.RespondBadRequest(c, "you are already friends")
	case models.FriendshipBlocked:
		util.RespondForbidden(c, "friend requests between these profiles are blocked")
	default:
		util.RespondBadRequest(c, "a friend request was already sent")
	}
}

// RespondFriendRequestRequest is the body of RespondFriendRequest
type RespondFriendRequestRequest struct {
	FriendshipID string `json:"friendship_id"`
	Action       string `json:"action"`
}

// RespondFriendRequest accepts or rejects a pending request addressed to
// the caller
// PUT /api/friendships
func (h *Handlers) RespondFriendRequest(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req RespondFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FriendshipID == "" {
		util.RespondValidationError(c, "friendship_id", "friendship_id is required")
		return
	}

	var target models.FriendshipStatus
	switch req.Action {
	case "accept":
		target = models.FriendshipAccepted
	case "reject":
		target = models.FriendshipBlocked
	default:
		util.RespondValidationError(c, "action", "action must be accept or reject")
		return
	}

	var friendship models.Friendship
	err := database.DB.Where("id = ? AND addressee_id = ? AND status = ?",
		req.FriendshipID, userID, models.FriendshipPending).First(&friendship).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondNotFound(c, "pending friend request")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "failed to load friend request", err)
		return
	}
	if !friendship.CanTransition(target) {
		util.RespondConflict(c, "friend request can no longer be answered")
		return
	}

	var accepted *models.Notification
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := transitionFriendship(tx, &friendship, target); err != nil {
			return err
		}
		if err := markRequestNotificationsRead(tx, userID, friendship.ID, ""); err != nil {
			return err
		}
		if target == models.FriendshipAccepted {
			note, err := createAcceptedNotification(tx, &friendship)
			if err != nil {
				return err
			}
			accepted = note
		}
		return nil
	})
	if errors.Is(err, errFriendshipChanged) {
		util.RespondConflict(c, "friend request was already answered")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "failed to answer friend request", err)
		return
	}

	metrics.Get().FriendshipEventsTotal.WithLabelValues(req.Action).Inc()
	logger.Log.Info("Friend request answered",
		logger.WithFriendshipID(friendship.ID),
		logger.WithUserID(userID),
		zap.String("action", req.Action))

	if accepted != nil {
		h.notify(friendship.RequesterID, websocket.MessageTypeFriendAccepted, gin.H{
			"friendship_id": friendship.ID,
			"friend_id":     userID,
		})
		h.notify(friendship.RequesterID, websocket.MessageTypeNotification, accepted)
	}

	message := "Solicitação de amizade aceita"
	if target == models.FriendshipBlocked {
		message = "Solicitação de amizade recusada"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"friendship": friendship,
		"message":    message,
	})
}

// transitionFriendship moves a pending row to status. The WHERE on status
// makes concurrent answers lose instead of overwrite.
func transitionFriendship(tx *gorm.DB, f *models.Friendship, status models.FriendshipStatus) error {
	if !f.CanTransition(status) {
		return errFriendshipChanged
	}
	result := tx.Model(&models.Friendship{}).
		Where("id = ? AND status = ?", f.ID, models.FriendshipPending).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errFriendshipChanged
	}
	f.Status = status
	return nil
}

// markRequestNotificationsRead marks profileID's friend_request
// notifications of a friendship read, plus notificationID when given. Other
// profiles' notifications are never touched.
func markRequestNotificationsRead(tx *gorm.DB, profileID, friendshipID, notificationID string) error {
	query := tx.Model(&models.Notification{})
	if notificationID != "" {
		query = query.Where("profile_id = ? AND (id = ? OR (related_id = ? AND type = ?))",
			profileID, notificationID, friendshipID, models.NotificationFriendRequest)
	} else {
		query = query.Where("profile_id = ? AND related_id = ? AND type = ?",
			profileID, friendshipID, models.NotificationFriendRequest)
	}
	return query.Update("read", true).Error
}

func createAcceptedNotification(tx *gorm.DB, f *models.Friendship) (*models.Notification, error) {
	var addressee models.Profile
	if err := tx.Select("id", "username", "display_name").First(&addressee, "id = ?", f.AddresseeID).Error; err != nil {
		return nil, err
	}
	note := &models.Notification{
		ProfileID:     f.RequesterID,
		FromProfileID: f.AddresseeID,
		Type:          models.NotificationFriendAccepted,
		Title:         "Solicitação aceita",
		Message:       fmt.Sprintf("%s aceitou sua solicitação de amizade", addressee.Name()),
		ActionURL:     "/perfil/" + f.AddresseeID,
		RelatedID:     f.ID,
	}
	return note, tx.Create(note).Error
}

// RemoveFriendship deletes a friendship or request involving the caller
// DELETE /api/friendships?friendship_id=|friend_id=
func (h *Handlers) RemoveFriendship(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	friendshipID := c.Query("friendship_id")
	friendID := c.Query("friend_id")
	if friendshipID == "" && friendID == "" {
		util.RespondBadRequest(c, "friendship_id or friend_id is required")
		return
	}

	query := database.DB.Where("requester_id = ? OR addressee_id = ?", userID, userID)
	if friendshipID != "" {
		query = query.Where("id = ?", friendshipID)
	} else {
		query = query.Where("pair_key = ?", models.FriendshipPairKey(userID, friendID))
	}

	result := query.Delete(&models.Friendship{})
	if result.Error != nil {
		util.RespondInternalError(c, "failed to remove friendship", result.Error)
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "friendship")
		return
	}

	logger.Log.Info("Friendship removed",
		logger.WithUserID(userID),
		zap.String("friendship_id", friendshipID),
		zap.String("friend_id", friendID))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Amizade removida",
	})
}

// AcceptFriendshipRequest is the body of AcceptFriendship
type AcceptFriendshipRequest struct {
	RequesterID    string `json:"requesterId"`
	AddresseeID    string `json:"addresseeId"`
	NotificationID string `json:"notificationId"`
}

// AcceptFriendship accepts a request from a notification. A missing
// request row is created already accepted; accepting twice is a no-op.
// POST /api/friendships/accept
func (h *Handlers) AcceptFriendship(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req AcceptFriendshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}
	if req.RequesterID == "" || req.AddresseeID == "" {
		util.RespondBadRequest(c, "requesterId and addresseeId are required")
		return
	}
	if req.AddresseeID != userID {
		util.RespondForbidden(c, "you can only accept requests sent to you")
		return
	}
	if req.RequesterID == userID {
		util.RespondBadRequest(c, "you cannot befriend yourself")
		return
	}

	var requester models.Profile
	if util.HandleDBError(c, database.DB.First(&requester, "id = ?", req.RequesterID).Error, "profile") {
		return
	}

	var friendship models.Friendship
	var accepted *models.Notification
	alreadyFriends := false
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("pair_key = ?", models.FriendshipPairKey(req.RequesterID, req.AddresseeID)).First(&friendship).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			friendship = models.Friendship{
				RequesterID: req.RequesterID,
				AddresseeID: req.AddresseeID,
				Status:      models.FriendshipAccepted,
			}
			if err := tx.Create(&friendship).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case friendship.Status == models.FriendshipAccepted:
			alreadyFriends = true
		case friendship.Status == models.FriendshipBlocked:
			return errFriendshipChanged
		case friendship.RequesterID != req.RequesterID:
			// the pending request goes the other way
			return errOwnRequest
		default:
			if err := transitionFriendship(tx, &friendship, models.FriendshipAccepted); err != nil {
				return err
			}
		}

		if err := markRequestNotificationsRead(tx, userID, friendship.ID, req.NotificationID); err != nil {
			return err
		}
		if alreadyFriends {
			return nil
		}
		note, err := createAcceptedNotification(tx, &friendship)
		accepted = note
		return err
	})
	if errors.Is(err, errFriendshipChanged) {
		util.RespondForbidden(c, "friend requests between these profiles are blocked")
		return
	}
	if errors.Is(err, errOwnRequest) {
		util.RespondForbidden(c, "you cannot accept a request you sent")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "failed to accept friendship", err)
		return
	}

	if accepted != nil {
		metrics.Get().FriendshipEventsTotal.WithLabelValues("accept").Inc()
		h.notify(friendship.RequesterID, websocket.MessageTypeFriendAccepted, gin.H{
			"friendship_id": friendship.ID,
			"friend_id":     userID,
		})
		h.notify(friendship.RequesterID, websocket.MessageTypeNotification, accepted)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"friendship": friendship,
		"message":    fmt.Sprintf("Agora você e %s são amigos", requester.Name()),
	})
}
