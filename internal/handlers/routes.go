package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/middleware"
)

// RegisterRoutes mounts every API endpoint under api. authLimit, when not
// nil, guards the login and registration endpoints.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, authLimit gin.HandlerFunc) {
	requireAuth := middleware.RequireAuth(h.auth)
	optionalAuth := middleware.OptionalAuth(h.auth)

	limited := func(handler gin.HandlerFunc) gin.HandlersChain {
		if authLimit == nil {
			return gin.HandlersChain{handler}
		}
		return gin.HandlersChain{authLimit, handler}
	}

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", limited(h.Register)...)
		authGroup.POST("/login", limited(h.Login)...)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/login", limited(h.AdminLogin)...)
		admin.GET("/login", h.AdminStatus)
	}

	profiles := api.Group("/profiles")
	{
		profiles.Use(requireAuth)
		profiles.GET("/me", h.GetMyProfile)
		profiles.PUT("/me", h.UpdateMyProfile)
		profiles.GET("/search", h.SearchProfiles)
		profiles.GET("/:id", h.GetProfile)
	}

	// editing and removing communities needs an admin token once admins exist
	communityAdmin := optionalAuth
	if h.auth.Admins().Configured() {
		communityAdmin = middleware.RequireAdmin(h.auth)
	}

	communities := api.Group("/communities")
	{
		communities.GET("", h.ListCommunities)
		communities.POST("", optionalAuth, h.CreateCommunity)
		communities.PUT("", communityAdmin, h.UpdateCommunity)
		communities.DELETE("", communityAdmin, h.DeleteCommunity)
	}

	friendships := api.Group("/friendships")
	{
		friendships.Use(requireAuth)
		friendships.GET("", h.ListFriendships)
		friendships.POST("", h.SendFriendRequest)
		friendships.PUT("", h.RespondFriendRequest)
		friendships.DELETE("", h.RemoveFriendship)
		friendships.POST("/accept", h.AcceptFriendship)
	}

	activity := api.Group("/user-activity")
	{
		activity.POST("", h.RecordActivity)
		activity.GET("", h.GetActivityStatus)
		activity.GET("/stats", h.GetActivityStats)
		activity.GET("/:userId", h.GetUserActivity)
	}
	api.POST("/user-activity-reset", h.ResetActivityAttempts)
	api.GET("/user-activity-reset", h.MethodNotAllowed)

	callGroup := api.Group("/calls")
	{
		callGroup.Use(requireAuth)
		callGroup.POST("", h.StartCall)
		callGroup.GET("/history", h.GetCallHistory)
		callGroup.GET("/active", h.GetActiveCall)
		callGroup.GET("/:id", h.GetCall)
		callGroup.POST("/:id/accept", h.AcceptCall)
		callGroup.POST("/:id/reject", h.RejectCall)
		callGroup.POST("/:id/end", h.EndCall)
		callGroup.POST("/:id/missed", h.MissCall)
	}

	messages := api.Group("/messages")
	{
		messages.Use(requireAuth)
		messages.POST("", h.SendMessage)
		messages.GET("/:profileId", h.GetConversation)
		messages.POST("/:profileId/read", h.MarkConversationRead)
	}

	posts := api.Group("/posts")
	{
		posts.Use(requireAuth)
		posts.GET("", h.ListPosts)
		posts.POST("", h.CreatePost)
	}

	notifications := api.Group("/notifications")
	{
		notifications.Use(requireAuth)
		notifications.GET("", h.GetNotifications)
		notifications.POST("/read-all", h.MarkAllNotificationsRead)
		notifications.POST("/:id/read", h.MarkNotificationRead)
	}
}
