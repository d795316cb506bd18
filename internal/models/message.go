package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is a direct message between two profiles
type Message struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	FromProfileID string     `gorm:"size:36;not null;index:idx_messages_pair" json:"from_profile_id"`
	ToProfileID   string     `gorm:"size:36;not null;index:idx_messages_pair" json:"to_profile_id"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}
