package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
	"github.com/yungbote/supportdesk-backend/internal/services"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type HandoffHandler struct {
	log            *logger.Logger
	handoffService services.HandoffService
}

func NewHandoffHandler(log *logger.Logger, handoffService services.HandoffService) *HandoffHandler {
	return &HandoffHandler{
		log:            log.With("handler", "HandoffHandler"),
		handoffService: handoffService,
	}
}

// sessionID prefers an explicit body value, falling back to the token's sid.
func sessionID(c *gin.Context, bodySessionID uuid.UUID) uuid.UUID {
	if bodySessionID != uuid.Nil {
		return bodySessionID
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd != nil {
		return rd.SessionID
	}
	return uuid.Nil
}

// POST /handoff/evaluate
// Called once per AI-chat turn; a nil offer means "keep chatting".
func (h *HandoffHandler) Evaluate(c *gin.Context) {
	var body struct {
		SessionID       uuid.UUID              `json:"sessionId"`
		Transcript      []types.TranscriptTurn `json:"transcript"`
		LatestUtterance string                 `json:"latestUtterance"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	offer, err := h.handoffService.Evaluate(c.Request.Context(), sessionID(c, body.SessionID), body.Transcript, body.LatestUtterance)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"offer": offer})
}

// POST /handoff/accept
func (h *HandoffHandler) Accept(c *gin.Context) {
	var body struct {
		SessionID uuid.UUID `json:"sessionId"`
		OfferID   uuid.UUID `json:"offerId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	if body.OfferID == uuid.Nil {
		RespondError(c, apierr.Validation("offer id required"))
		return
	}
	conversation, created, err := h.handoffService.Accept(c.Request.Context(), sessionID(c, body.SessionID), body.OfferID)
	if err != nil {
		RespondError(c, err)
		return
	}
	payload := gin.H{"conversation": conversation, "created": created}
	if created {
		RespondCreated(c, payload)
		return
	}
	RespondOK(c, payload)
}

// POST /handoff/decline
func (h *HandoffHandler) Decline(c *gin.Context) {
	var body struct {
		SessionID uuid.UUID `json:"sessionId"`
		OfferID   uuid.UUID `json:"offerId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	if body.OfferID == uuid.Nil {
		RespondError(c, apierr.Validation("offer id required"))
		return
	}
	if err := h.handoffService.Decline(c.Request.Context(), sessionID(c, body.SessionID), body.OfferID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"declined": true})
}
