package websocket

import (
	"context"
	"time"

	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PresenceManager tells a profile's friends when it comes online or goes
// away, and records last_seen_at when the last connection closes.
type PresenceManager struct {
	hub *Hub
	db  *gorm.DB
	now func() time.Time
}

// NewPresenceManager hooks presence tracking into hub
func NewPresenceManager(hub *Hub, db *gorm.DB) *PresenceManager {
	pm := &PresenceManager{
		hub: hub,
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	hub.SetPresenceHooks(pm.online, pm.offline)
	hub.RegisterHandler(MessageTypePresence, pm.handleQuery)
	return pm
}

func (pm *PresenceManager) online(userID string) {
	pm.broadcast(userID, PresencePayload{UserID: userID, Online: true})
}

func (pm *PresenceManager) offline(userID string) {
	// A reconnect may have raced the close
	if pm.hub.IsUserOnline(userID) {
		return
	}

	seen := pm.now()
	if pm.db != nil {
		err := pm.db.Model(&models.Profile{}).
			Where("id = ?", userID).
			Update("last_seen_at", seen).Error
		if err != nil {
			logger.WarnWithFields("Failed to record last_seen_at", err, logger.WithUserID(userID))
		}
	}
	pm.broadcast(userID, PresencePayload{UserID: userID, Online: false, LastSeenAt: &seen})
}

// broadcast sends payload to every connected friend of userID
func (pm *PresenceManager) broadcast(userID string, payload PresencePayload) {
	friends, err := pm.FriendIDs(context.Background(), userID)
	if err != nil {
		logger.WarnWithFields("Failed to load friends for presence", err, logger.WithUserID(userID))
		return
	}
	for _, friendID := range friends {
		if pm.hub.IsUserOnline(friendID) {
			pm.hub.Notify(friendID, MessageTypePresence, payload)
		}
	}
}

// FriendIDs lists the profiles with an accepted friendship to userID
func (pm *PresenceManager) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	if pm.db == nil {
		return nil, nil
	}

	var rows []models.Friendship
	err := pm.db.WithContext(ctx).
		Where("status = ? AND (requester_id = ? OR addressee_id = ?)", models.FriendshipAccepted, userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, f := range rows {
		ids = append(ids, f.OtherID(userID))
	}
	return ids, nil
}

// handleQuery answers {"type":"presence","payload":{"user_ids":[...]}}
func (pm *PresenceManager) handleQuery(client *Client, msg *Message) error {
	var query PresenceQuery
	if err := msg.ParsePayload(&query); err != nil {
		return err
	}

	statuses := make(map[string]bool, len(query.UserIDs))
	for _, id := range query.UserIDs {
		statuses[id] = pm.hub.IsUserOnline(id)
	}

	logger.Log.Debug("Presence query", logger.WithUserID(client.UserID), zap.Int("ids", len(query.UserIDs)))
	return client.Send(NewReply(msg, MessageTypePresence, PresenceResult{Statuses: statuses}))
}
