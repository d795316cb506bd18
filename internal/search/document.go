package search

import (
	"time"

	"github.com/orkutrevival/backend/internal/models"
)

// CommunityDoc is the indexed form of a community
type CommunityDoc struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags,omitempty"`
	Visibility   string   `json:"visibility"`
	MembersCount int      `json:"members_count"`
	IsActive     bool     `json:"is_active"`
	CreatedAt    string   `json:"created_at"`
}

// ProfileDoc is the indexed form of a profile
type ProfileDoc struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Location    string `json:"location,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func CommunityToDoc(c *models.Community) CommunityDoc {
	return CommunityDoc{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		Category:     c.Category,
		Tags:         []string(c.Tags),
		Visibility:   c.Visibility,
		MembersCount: c.MembersCount,
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func ProfileToDoc(p *models.Profile) ProfileDoc {
	return ProfileDoc{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Location:    p.Location,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}
