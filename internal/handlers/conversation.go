package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/services"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type ConversationHandler struct {
	log                 *logger.Logger
	conversationService services.ConversationService
}

func NewConversationHandler(log *logger.Logger, conversationService services.ConversationService) *ConversationHandler {
	return &ConversationHandler{
		log:                 log.With("handler", "ConversationHandler"),
		conversationService: conversationService,
	}
}

// POST /conversations
// Opens a support conversation, optionally with the first message.
func (h *ConversationHandler) Create(c *gin.Context) {
	var body struct {
		Subject        string                     `json:"subject"`
		InitialMessage string                     `json:"initialMessage"`
		Priority       types.ConversationPriority `json:"priority"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	conversation, firstMessage, err := h.conversationService.Create(c.Request.Context(), services.CreateConversationInput{
		Subject:        body.Subject,
		Priority:       body.Priority,
		Type:           types.ConversationSupport,
		InitialMessage: body.InitialMessage,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, gin.H{"conversation": conversation, "message": firstMessage})
}

// GET /conversations
func (h *ConversationHandler) ListMine(c *gin.Context) {
	conversations, err := h.conversationService.ListForUser(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"conversations": conversations})
}

// GET /conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	conversation, err := h.conversationService.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"conversation": conversation})
}

// PUT /conversations/:id
// Rename; admins may also change priority here.
func (h *ConversationHandler) Update(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	var body struct {
		Subject  string                     `json:"subject"`
		Priority types.ConversationPriority `json:"priority"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	if body.Subject == "" && body.Priority == "" {
		RespondError(c, apierr.Validation("nothing to update"))
		return
	}

	var conversation *types.Conversation
	if body.Subject != "" {
		conversation, err = h.conversationService.Rename(c.Request.Context(), conversationID, body.Subject)
		if err != nil {
			RespondError(c, err)
			return
		}
	}
	if body.Priority != "" {
		conversation, err = h.conversationService.ChangePriority(c.Request.Context(), conversationID, body.Priority)
		if err != nil {
			RespondError(c, err)
			return
		}
	}
	RespondOK(c, gin.H{"conversation": conversation})
}

// POST /conversations/:id/close
func (h *ConversationHandler) Close(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	conversation, err := h.conversationService.Close(c.Request.Context(), conversationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"conversation": conversation})
}

// POST /conversations/:id/transfer
// Re-opens a closed conversation into a successor.
func (h *ConversationHandler) Transfer(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	successor, err := h.conversationService.Transfer(c.Request.Context(), conversationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, gin.H{"conversation": successor})
}
