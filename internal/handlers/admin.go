package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/services"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type AdminHandler struct {
	log                 *logger.Logger
	conversationService services.ConversationService
	queueService        services.QueueService
}

func NewAdminHandler(log *logger.Logger, conversationService services.ConversationService, queueService services.QueueService) *AdminHandler {
	return &AdminHandler{
		log:                 log.With("handler", "AdminHandler"),
		conversationService: conversationService,
		queueService:        queueService,
	}
}

// GET /admin/conversations
// Queue view. Filters compose as a conjunction; search matches subject or
// message content.
func (h *AdminHandler) ListQueue(c *gin.Context) {
	filter := repos.QueueFilter{
		Status:   types.ConversationStatus(c.Query("status")),
		Priority: types.ConversationPriority(c.Query("priority")),
		Search:   c.Query("search"),
	}
	if raw := c.Query("assignedAdminId"); raw != "" {
		adminID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, apierr.Validation("invalid assignedAdminId"))
			return
		}
		filter.AssignedAdminID = &adminID
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			RespondError(c, apierr.Validation("invalid page"))
			return
		}
		filter.Page = page
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			RespondError(c, apierr.Validation("invalid limit"))
			return
		}
		filter.Limit = limit
	}

	conversations, total, err := h.conversationService.ListForQueue(c.Request.Context(), filter)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"conversations": conversations, "total": total})
}

// POST /admin/conversations/:id/assign
func (h *AdminHandler) Assign(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	var body struct {
		AdminID uuid.UUID `json:"adminId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	conversation, err := h.conversationService.Assign(c.Request.Context(), conversationID, body.AdminID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"conversation": conversation})
}

// PUT /admin/conversations/:id/status
func (h *AdminHandler) ChangeStatus(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, apierr.Validation("invalid conversation id"))
		return
	}
	var body struct {
		Status types.ConversationStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	conversation, err := h.conversationService.ChangeStatus(c.Request.Context(), conversationID, body.Status)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"conversation": conversation})
}

// POST /admin/conversations/bulk
func (h *AdminHandler) BulkUpdate(c *gin.Context) {
	var body struct {
		ConversationIDs []uuid.UUID             `json:"conversationIds"`
		Action          string                  `json:"action"`
		Data            services.BulkUpdateData `json:"data"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	result, err := h.queueService.BulkUpdate(c.Request.Context(), body.ConversationIDs, body.Action, body.Data)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	period := time.Duration(0)
	if raw := c.Query("periodHours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 {
			RespondError(c, apierr.Validation("invalid periodHours"))
			return
		}
		period = time.Duration(hours) * time.Hour
	}
	stats, err := h.queueService.GetStats(c.Request.Context(), period)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, stats)
}
