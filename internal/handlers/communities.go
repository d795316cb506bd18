package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/database"
	apierrors "github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/middleware"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/search"
	"github.com/orkutrevival/backend/internal/seed"
	"github.com/orkutrevival/backend/internal/util"
	"go.uber.org/zap"
)

const (
	communityNameMin = 3
	communityNameMax = 50
	communityDescMin = 10
	communityDescMax = 500
	defaultOwner     = "orkut-user"
)

// ListCommunities returns one page of active communities. With an empty
// store the built-in demo catalogue is served instead.
// GET /api/communities?category=&search=&limit=&offset=
func (h *Handlers) ListCommunities(c *gin.Context) {
	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 50, 100)
	query := search.CommunityQuery{
		Text:     strings.TrimSpace(c.Query("search")),
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    limit,
		Offset:   offset,
	}

	var stored int64
	if err := database.DB.Model(&models.Community{}).Count(&stored).Error; err != nil {
		util.RespondInternalError(c, "failed to load communities", err)
		return
	}
	if stored == 0 {
		communities, total := demoPage(query)
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"communities": communities,
			"total":       total,
			"pagination":  pagination(limit, offset, len(communities), total),
			"demo":        true,
			"source":      "demo",
			"message":     "Nenhuma comunidade cadastrada ainda, exibindo comunidades de demonstração",
			"timestamp":   time.Now().UTC(),
		})
		return
	}

	result, err := h.searcher().Communities(c.Request.Context(), query)
	if err != nil {
		util.RespondInternalError(c, "failed to load communities", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"communities": result.Communities,
		"total":       result.Total,
		"pagination":  pagination(limit, offset, len(result.Communities), result.Total),
		"source":      result.Source,
		"message":     fmt.Sprintf("%d comunidades encontradas", result.Total),
		"timestamp":   time.Now().UTC(),
	})
}

func pagination(limit, offset, count int, total int64) gin.H {
	return gin.H{
		"limit":   limit,
		"offset":  offset,
		"hasMore": int64(offset+count) < total,
	}
}

// demoPage filters the demo catalogue the same way the database query does
func demoPage(q search.CommunityQuery) ([]models.Community, int64) {
	matched := make([]models.Community, 0)
	for _, community := range seed.DemoCommunities() {
		if q.Category != "" && q.Category != models.CategoryAll && community.Category != q.Category {
			continue
		}
		if q.Text != "" && !util.ContainsFold(community.Name, q.Text) && !util.ContainsFold(community.Description, q.Text) {
			continue
		}
		matched = append(matched, community)
	}

	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []models.Community{}, total
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], total
}

// CommunityRequest is the body of create and update calls
type CommunityRequest struct {
	ID          string   `json:"id"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Privacy     *string  `json:"privacy"`
	Rules       *string  `json:"rules"`
	PhotoURL    *string  `json:"photo_url"`
	Owner       string   `json:"owner"`
	Tags        []string `json:"tags"`
	UserEmail   string   `json:"user_email"`
}

// actorEmail resolves who is acting. A request carrying a token is judged
// by its claims alone, so an invalid token yields no actor. Without a token
// the X-User-Email header, then the body, count only when trusted.
func (h *Handlers) actorEmail(c *gin.Context, bodyEmail string) string {
	if middleware.BearerToken(c) != "" {
		return util.NormalizeEmail(util.GetEmailFromContext(c))
	}
	if !h.trustEmailHeader {
		return ""
	}
	if email := c.GetHeader("X-User-Email"); email != "" {
		return util.NormalizeEmail(email)
	}
	return util.NormalizeEmail(bodyEmail)
}

// requireCommunityAdmin answers 403 and returns false unless email may manage
// communities. With no admins configured everyone may.
func (h *Handlers) requireCommunityAdmin(c *gin.Context, email, action string, fields ...zap.Field) bool {
	admins := h.auth.Admins()
	if !admins.Configured() {
		logger.Log.Warn("No administrators configured, allowing community change",
			zap.String("action", action), zap.String("email", email))
		return true
	}

	authorized, reason := admins.RequireAdmin(email)
	if !authorized {
		logger.Audit("FORBIDDEN_"+action, email, fields...)
		util.RespondWithAPIError(c, apierrors.Forbidden(reason).
			WithExtra("admin_emails", admins.Emails()).
			WithExtra("current_user", email).
			WithExtra("is_admin", false).
			WithExtra("help", "Para gerenciar comunidades, faça login com um dos emails de administrador configurados"))
		return false
	}

	logger.Audit(action, email, fields...)
	return true
}

// validateCommunity checks the fields present in req. With full set the
// name, description and category are required.
func validateCommunity(c *gin.Context, req *CommunityRequest, full bool) bool {
	if full {
		if req.Name == nil || strings.TrimSpace(*req.Name) == "" ||
			req.Description == nil || strings.TrimSpace(*req.Description) == "" ||
			req.Category == nil || strings.TrimSpace(*req.Category) == "" {
			util.RespondWithAPIError(c, apierrors.BadRequest("name, description and category are required").
				WithDetails("all main fields must be filled in"))
			return false
		}
	}
	if req.Name != nil {
		if err := util.ValidateLength("name", *req.Name, communityNameMin, communityNameMax); err != nil {
			util.RespondValidationError(c, "name", err.Error())
			return false
		}
	}
	if req.Description != nil {
		if err := util.ValidateLength("description", *req.Description, communityDescMin, communityDescMax); err != nil {
			util.RespondValidationError(c, "description", err.Error())
			return false
		}
	}
	if req.Category != nil && strings.TrimSpace(*req.Category) == "" {
		util.RespondValidationError(c, "category", "category cannot be empty")
		return false
	}
	if req.Privacy != nil && *req.Privacy != "" && !models.ValidVisibility(*req.Privacy) {
		util.RespondValidationError(c, "privacy", "privacy must be public, private or restricted")
		return false
	}
	return true
}

func nameTaken(name, exceptID string) (bool, error) {
	var n int64
	query := database.DB.Model(&models.Community{}).Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name))
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	err := query.Count(&n).Error
	return n > 0, err
}

// CreateCommunity creates a community
// POST /api/communities
func (h *Handlers) CreateCommunity(c *gin.Context) {
	var req CommunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	email := h.actorEmail(c, req.UserEmail)
	name := ""
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if !h.requireCommunityAdmin(c, email, "CREATE_COMMUNITY", zap.String("community_name", name)) {
		return
	}
	if !validateCommunity(c, &req, true) {
		return
	}

	taken, err := nameTaken(name, "")
	if err != nil {
		util.RespondInternalError(c, "failed to create community", err)
		return
	}
	if taken {
		util.RespondConflict(c, fmt.Sprintf("a community named %q already exists", name))
		return
	}

	visibility := models.VisibilityPublic
	if req.Privacy != nil && *req.Privacy != "" {
		visibility = *req.Privacy
	}
	photo := seed.DefaultCommunityPhoto
	if req.PhotoURL != nil && strings.TrimSpace(*req.PhotoURL) != "" {
		photo = strings.TrimSpace(*req.PhotoURL)
	}
	rules := seed.DefaultRules
	if req.Rules != nil && strings.TrimSpace(*req.Rules) != "" {
		rules = strings.TrimSpace(*req.Rules)
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	community := models.Community{
		Name:                 name,
		Description:          strings.TrimSpace(*req.Description),
		Category:             strings.TrimSpace(*req.Category),
		PhotoURL:             photo,
		MembersCount:         1,
		Owner:                h.communityOwner(c, req.Owner),
		Visibility:           visibility,
		JoinApprovalRequired: visibility == models.VisibilityRestricted || visibility == models.VisibilityPrivate,
		Rules:                rules,
		WelcomeMessage:       seed.WelcomeMessage(name),
		Tags:                 models.StringArray(tags),
		IsActive:             true,
	}
	if err := database.DB.Create(&community).Error; err != nil {
		if taken, _ := nameTaken(name, ""); taken {
			util.RespondConflict(c, fmt.Sprintf("a community named %q already exists", name))
			return
		}
		util.RespondInternalError(c, "failed to create community", err)
		return
	}

	h.searcher().IndexCommunity(c.Request.Context(), &community)
	logger.Log.Info("Community created",
		logger.WithCommunityID(community.ID),
		zap.String("name", community.Name),
		zap.String("category", community.Category))

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"community": community,
		"message":   fmt.Sprintf("Comunidade \"%s\" criada com sucesso", community.Name),
		"source":    "database",
		"timestamp": time.Now().UTC(),
	})
}

// communityOwner picks the explicit owner, the creator's username or a
// placeholder
func (h *Handlers) communityOwner(c *gin.Context, explicit string) string {
	if owner := strings.TrimSpace(explicit); owner != "" {
		return owner
	}
	if userID := c.GetString(util.ContextUserID); userID != "" {
		var profile models.Profile
		if err := database.DB.Select("username").First(&profile, "id = ?", userID).Error; err == nil {
			return profile.Username
		}
	}
	return defaultOwner
}

// UpdateCommunity edits an active community
// PUT /api/communities
func (h *Handlers) UpdateCommunity(c *gin.Context) {
	var req CommunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}
	if req.ID == "" {
		util.RespondValidationError(c, "id", "id is required")
		return
	}

	email := h.actorEmail(c, req.UserEmail)
	if !h.requireCommunityAdmin(c, email, "EDIT_COMMUNITY", logger.WithCommunityID(req.ID)) {
		return
	}
	if !validateCommunity(c, &req, false) {
		return
	}

	var community models.Community
	err := database.DB.Where("id = ? AND is_active = ?", req.ID, true).First(&community).Error
	if util.HandleDBError(c, err, "community") {
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		taken, err := nameTaken(name, community.ID)
		if err != nil {
			util.RespondInternalError(c, "failed to update community", err)
			return
		}
		if taken {
			util.RespondConflict(c, fmt.Sprintf("a community named %q already exists", name))
			return
		}
		updates["name"] = name
		updates["welcome_message"] = seed.WelcomeMessage(name)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		updates["category"] = strings.TrimSpace(*req.Category)
	}
	if req.Privacy != nil && *req.Privacy != "" {
		updates["visibility"] = *req.Privacy
		updates["join_approval_required"] = *req.Privacy != models.VisibilityPublic
	}
	if req.Rules != nil {
		updates["rules"] = strings.TrimSpace(*req.Rules)
	}
	if req.PhotoURL != nil {
		updates["photo_url"] = strings.TrimSpace(*req.PhotoURL)
	}
	if req.Tags != nil {
		updates["tags"] = models.StringArray(req.Tags)
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&community).Updates(updates).Error; err != nil {
			util.RespondInternalError(c, "failed to update community", err)
			return
		}
		if err := database.DB.First(&community, "id = ?", community.ID).Error; err != nil {
			util.RespondInternalError(c, "failed to reload community", err)
			return
		}
		h.searcher().IndexCommunity(c.Request.Context(), &community)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"community": community,
		"message":   fmt.Sprintf("Comunidade \"%s\" atualizada", community.Name),
	})
}

// DeleteCommunity deactivates a community. Rows are kept so posts inside it
// still resolve.
// DELETE /api/communities?id=
func (h *Handlers) DeleteCommunity(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		util.RespondValidationError(c, "id", "id is required")
		return
	}

	email := h.actorEmail(c, "")
	if !h.requireCommunityAdmin(c, email, "DELETE_COMMUNITY", logger.WithCommunityID(id)) {
		return
	}

	result := database.DB.Model(&models.Community{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		util.RespondInternalError(c, "failed to delete community", result.Error)
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "community")
		return
	}

	h.searcher().RemoveCommunity(c.Request.Context(), id)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      id,
		"message": "Comunidade removida",
	})
}
