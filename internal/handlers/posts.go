package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/util"
)

const postMaxLength = 5000

// ListPosts returns the newest posts, optionally inside one community
// GET /api/posts?community_id=&author_id=&limit=&offset=
func (h *Handlers) ListPosts(c *gin.Context) {
	limit, offset := util.ParsePagination(c.Query("limit"), c.Query("offset"), 20, 100)

	query := database.DB.Model(&models.Post{})
	if communityID := c.Query("community_id"); communityID != "" {
		query = query.Where("community_id = ?", communityID)
	}
	if authorID := c.Query("author_id"); authorID != "" {
		query = query.Where("author_id = ?", authorID)
	}

	var posts []models.Post
	err := query.Preload("Author").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		util.RespondInternalError(c, "failed to load posts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"posts":   posts,
		"count":   len(posts),
	})
}

// CreatePostRequest is the body of CreatePost
type CreatePostRequest struct {
	Content     string `json:"content"`
	CommunityID string `json:"community_id"`
}

// CreatePost writes a post on the author's page or inside a community
// POST /api/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}
	if err := util.ValidateLength("content", req.Content, 1, postMaxLength); err != nil {
		util.RespondValidationError(c, "content", err.Error())
		return
	}

	post := models.Post{
		AuthorID: userID,
		Content:  strings.TrimSpace(req.Content),
	}
	if req.CommunityID != "" {
		var community models.Community
		err := database.DB.Select("id").Where("id = ? AND is_active = ?", req.CommunityID, true).First(&community).Error
		if util.HandleDBError(c, err, "community") {
			return
		}
		post.CommunityID = &community.ID
	}

	if err := database.DB.Create(&post).Error; err != nil {
		util.RespondInternalError(c, "failed to create post", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"post":    post,
	})
}
