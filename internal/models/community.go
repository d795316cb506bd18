package models

import (
	"time"

	"gorm.io/gorm"
)

// Community visibility values
const (
	VisibilityPublic     = "public"
	VisibilityPrivate    = "private"
	VisibilityRestricted = "restricted"
)

// CategoryAll is the pseudo category that disables category filtering
const CategoryAll = "Todos"

type Community struct {
	ID                   string      `gorm:"primaryKey;size:36" json:"id"`
	Name                 string      `gorm:"uniqueIndex;size:50;not null" json:"name"`
	Description          string      `gorm:"type:text;not null" json:"description"`
	Category             string      `gorm:"size:64;index;not null" json:"category"`
	PhotoURL             string      `json:"photo_url"`
	MembersCount         int         `gorm:"default:1" json:"members_count"`
	Owner                string      `json:"owner"`
	Visibility           string      `gorm:"size:16;default:public" json:"visibility"`
	JoinApprovalRequired bool        `json:"join_approval_required"`
	Rules                string      `gorm:"type:text" json:"rules"`
	WelcomeMessage       string      `gorm:"type:text" json:"welcome_message"`
	Tags                 StringArray `json:"tags"`
	IsActive             bool        `gorm:"default:true;index" json:"is_active"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

func (c *Community) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

// ValidVisibility reports whether v is a known visibility
func ValidVisibility(v string) bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityRestricted:
		return true
	}
	return false
}
