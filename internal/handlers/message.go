package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/services"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type MessageHandler struct {
	log            *logger.Logger
	messageService services.MessageService
}

func NewMessageHandler(log *logger.Logger, messageService services.MessageService) *MessageHandler {
	return &MessageHandler{
		log:            log.With("handler", "MessageHandler"),
		messageService: messageService,
	}
}

// POST /messages
func (h *MessageHandler) Append(c *gin.Context) {
	var body struct {
		ConversationID uuid.UUID         `json:"conversationId"`
		Content        string            `json:"content"`
		MessageType    types.MessageType `json:"messageType"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	message, err := h.messageService.Append(c.Request.Context(), services.AppendMessageInput{
		ConversationID: body.ConversationID,
		Content:        body.Content,
		MessageType:    body.MessageType,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, gin.H{"message": message})
}

// GET /conversations/:id/messages
func (h *MessageHandler) ListByConversation(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	messages, err := h.messageService.ListByConversation(c.Request.Context(), conversationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": messages})
}

// PUT /messages/:id/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid message id"))
		return
	}
	message, err := h.messageService.MarkRead(c.Request.Context(), messageID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": message})
}

// POST /conversations/:id/read
// Advances the caller's read cursor across the whole conversation.
func (h *MessageHandler) MarkAllRead(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	marked, err := h.messageService.MarkAllRead(c.Request.Context(), conversationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"marked": marked})
}

// GET /conversations/:id/unread
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	count, err := h.messageService.UnreadCount(c.Request.Context(), conversationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"unreadCount": count})
}

// DELETE /messages/:id
// Admin-only soft removal; the record stays, redacted.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid message id"))
		return
	}
	if err := h.messageService.Delete(c.Request.Context(), messageID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}
