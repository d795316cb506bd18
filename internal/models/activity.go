package models

import (
	"time"

	"gorm.io/gorm"
)

// ActivityEntry is one row of the local activity ledger. Entries are
// mirrored to the remote ledger file; Synced flips once a commit holds it.
type ActivityEntry struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         string    `gorm:"size:128;not null;index" json:"userId"`
	Action         string    `gorm:"size:128;not null;index" json:"action"`
	Data           JSONMap   `json:"data"`
	IdempotencyKey string    `gorm:"size:128;uniqueIndex" json:"idempotencyKey"`
	Synced         bool      `gorm:"index" json:"synced"`
	CommitSHA      string    `gorm:"size:64" json:"commitSha,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"timestamp"`
}

func (a *ActivityEntry) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = generateUUID()
	}
	if a.IdempotencyKey == "" {
		a.IdempotencyKey = a.ID
	}
	return nil
}

// AllModels lists every table owned by the service, in migration order
func AllModels() []interface{} {
	return []interface{}{
		&Profile{},
		&Friendship{},
		&Community{},
		&Post{},
		&Message{},
		&Notification{},
		&Call{},
		&ActivityEntry{},
	}
}
