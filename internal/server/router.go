package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/supportdesk-backend/internal/handlers"
	"github.com/yungbote/supportdesk-backend/internal/middleware"
)

type RouterConfig struct {
	Mode           string
	AllowedOrigins []string
}

type Handlers struct {
	Conversation *handlers.ConversationHandler
	Message      *handlers.MessageHandler
	Handoff      *handlers.HandoffHandler
	Admin        *handlers.AdminHandler
	Preference   *handlers.PreferenceHandler
	SSE          *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig, h Handlers, auth *middleware.AuthMiddleware) *gin.Engine {
	switch strings.ToLower(cfg.Mode) {
	case "prod", "production", "release":
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(auth.RequireAuth())
	{
		conversations := api.Group("/conversations")
		{
			conversations.POST("", h.Conversation.Create)
			conversations.GET("", h.Conversation.ListMine)
			conversations.GET("/:id", h.Conversation.Get)
			conversations.PUT("/:id", h.Conversation.Update)
			conversations.POST("/:id/close", h.Conversation.Close)
			conversations.POST("/:id/transfer", h.Conversation.Transfer)
			conversations.GET("/:id/messages", h.Message.ListByConversation)
			conversations.POST("/:id/read", h.Message.MarkAllRead)
			conversations.GET("/:id/unread", h.Message.UnreadCount)
		}

		messages := api.Group("/messages")
		{
			messages.POST("", h.Message.Append)
			messages.PUT("/:id/read", h.Message.MarkRead)
			messages.DELETE("/:id", h.Message.Delete)
		}

		handoff := api.Group("/handoff")
		{
			handoff.POST("/evaluate", h.Handoff.Evaluate)
			handoff.POST("/accept", h.Handoff.Accept)
			handoff.POST("/decline", h.Handoff.Decline)
		}

		admin := api.Group("/admin")
		admin.Use(auth.RequireAdmin())
		{
			admin.GET("/conversations", h.Admin.ListQueue)
			admin.POST("/conversations/bulk", h.Admin.BulkUpdate)
			admin.POST("/conversations/:id/assign", h.Admin.Assign)
			admin.PUT("/conversations/:id/status", h.Admin.ChangeStatus)
			admin.GET("/stats", h.Admin.Stats)
		}

		preferences := api.Group("/preferences")
		{
			preferences.GET("", h.Preference.Get)
			preferences.PUT("", h.Preference.Update)
		}

		sse := api.Group("/sse")
		{
			sse.GET("/stream", h.SSE.Stream)
			sse.POST("/subscribe", h.SSE.Subscribe)
			sse.POST("/unsubscribe", h.SSE.Unsubscribe)
			sse.PUT("/permission", h.SSE.SetBrowserPermission)
		}
	}

	return router
}
