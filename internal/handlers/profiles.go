package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/util"
)

// GetMyProfile returns the authenticated profile
// GET /api/profiles/me
func (h *Handlers) GetMyProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var profile models.Profile
	if util.HandleDBError(c, database.DB.First(&profile, "id = ?", userID).Error, "profile") {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"profile":  profile,
		"is_admin": h.auth.Admins().IsAdmin(profile.Email),
	})
}

// GetProfile returns another member's public profile and the friendship
// status between the two
// GET /api/profiles/:id
func (h *Handlers) GetProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var profile models.Profile
	if util.HandleDBError(c, database.DB.First(&profile, "id = ?", c.Param("id")).Error, "profile") {
		return
	}

	var friendCount int64
	err := database.DB.Model(&models.Friendship{}).
		Where("(requester_id = ? OR addressee_id = ?) AND status = ?", profile.ID, profile.ID, models.FriendshipAccepted).
		Count(&friendCount).Error
	if err != nil {
		util.RespondInternalError(c, "failed to count friends", err)
		return
	}

	friendship := ""
	if profile.ID != userID {
		var f models.Friendship
		err := database.DB.Where("pair_key = ?", models.FriendshipPairKey(userID, profile.ID)).First(&f).Error
		if err == nil {
			friendship = string(f.Status)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"profile":           profile.Summary(),
		"location":          profile.Location,
		"relationship":      profile.Relationship,
		"friends_count":     friendCount,
		"friendship_status": friendship,
	})
}

// UpdateProfileRequest carries the editable profile fields
type UpdateProfileRequest struct {
	DisplayName  *string `json:"display_name"`
	PhotoURL     *string `json:"photo_url"`
	Bio          *string `json:"bio"`
	Location     *string `json:"location"`
	Relationship *string `json:"relationship"`
}

// UpdateMyProfile edits the authenticated profile
// PUT /api/profiles/me
func (h *Handlers) UpdateMyProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		if err := util.ValidateLength("display_name", *req.DisplayName, 1, 50); err != nil {
			util.RespondValidationError(c, "display_name", err.Error())
			return
		}
		updates["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if req.Bio != nil {
		if util.TrimmedLength(*req.Bio) > 500 {
			util.RespondValidationError(c, "bio", "bio must be at most 500 characters")
			return
		}
		updates["bio"] = strings.TrimSpace(*req.Bio)
	}
	if req.PhotoURL != nil {
		updates["photo_url"] = strings.TrimSpace(*req.PhotoURL)
	}
	if req.Location != nil {
		updates["location"] = strings.TrimSpace(*req.Location)
	}
	if req.Relationship != nil {
		updates["relationship"] = strings.TrimSpace(*req.Relationship)
	}

	var profile models.Profile
	if util.HandleDBError(c, database.DB.First(&profile, "id = ?", userID).Error, "profile") {
		return
	}
	if len(updates) > 0 {
		if err := database.DB.Model(&profile).Updates(updates).Error; err != nil {
			util.RespondInternalError(c, "failed to update profile", err)
			return
		}
		h.searcher().IndexProfile(c.Request.Context(), &profile)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"profile": profile,
	})
}

// SearchProfiles finds members by username or display name
// GET /api/profiles/search?q=
func (h *Handlers) SearchProfiles(c *gin.Context) {
	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	result, err := h.searcher().Profiles(c.Request.Context(), c.Query("q"), limit, offset)
	if err != nil {
		util.RespondInternalError(c, "failed to search profiles", err)
		return
	}

	summaries := make([]models.ProfileSummary, len(result.Profiles))
	for i := range result.Profiles {
		summaries[i] = result.Profiles[i].Summary()
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"profiles": summaries,
		"total":    result.Total,
		"source":   result.Source,
		"pagination": gin.H{
			"limit":   limit,
			"offset":  offset,
			"hasMore": int64(offset+len(summaries)) < result.Total,
		},
	})
}
