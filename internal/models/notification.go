package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification types
const (
	NotificationFriendRequest  = "friend_request"
	NotificationFriendAccepted = "friend_accepted"
	NotificationCallMissed     = "call_missed"
	NotificationMessage        = "message"
)

type Notification struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ProfileID     string    `gorm:"size:36;not null;index" json:"profile_id"`
	FromProfileID string    `gorm:"size:36" json:"from_profile_id,omitempty"`
	Type          string    `gorm:"size:32;not null;index" json:"type"`
	Title         string    `json:"title"`
	Message       string    `gorm:"type:text" json:"message"`
	ActionURL     string    `json:"action_url,omitempty"`
	RelatedID     string    `gorm:"size:128;index" json:"related_id,omitempty"`
	Read          bool      `gorm:"default:false;index" json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = generateUUID()
	}
	return nil
}
