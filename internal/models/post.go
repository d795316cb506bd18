package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is a scrap written on the author's page or inside a community
type Post struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	AuthorID    string    `gorm:"size:36;not null;index" json:"author_id"`
	CommunityID *string   `gorm:"size:36;index" json:"community_id,omitempty"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	LikesCount  int       `gorm:"default:0" json:"likes_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Author *Profile `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}
