package models

import (
	"time"

	"gorm.io/gorm"
)

// Profile is a member of the network
type Profile struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName  string     `gorm:"not null" json:"display_name"`
	PhotoURL     string     `json:"photo_url"`
	Bio          string     `gorm:"type:text" json:"bio"`
	Location     string     `json:"location"`
	Relationship string     `json:"relationship"`
	PasswordHash *string    `gorm:"type:text" json:"-"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

// Name returns the display name, falling back to the username
func (p *Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// ProfileSummary is the public subset embedded in other payloads
type ProfileSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
	Bio         string `json:"bio,omitempty"`
}

// Summary returns the public subset of the profile
func (p *Profile) Summary() ProfileSummary {
	return ProfileSummary{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		Bio:         p.Bio,
	}
}
