package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
	"github.com/yungbote/supportdesk-backend/internal/sse"
)

type SSEHandler struct {
	log *logger.Logger
	hub *sse.SSEHub
}

func NewSSEHandler(log *logger.Logger, hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{
		log: log.With("handler", "SSEHandler"),
		hub: hub,
	}
}

// canSubscribe limits a session to its own user channel plus, for admins,
// the shared queue channel.
func canSubscribe(rd *requestdata.RequestData, channel string) bool {
	if channel == rd.UserID.String() {
		return true
	}
	if channel == sse.AdminQueueChannel {
		return rd.IsAdmin()
	}
	return false
}

// GET /sse/stream
// Long-lived event stream. The client id is announced as the first event so
// the session can manage its subscriptions and permission state.
func (h *SSEHandler) Stream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, apierr.Permission("no authenticated principal"))
		return
	}

	client := h.hub.NewSSEClient(rd.UserID)
	defer h.hub.CloseClient(client)

	h.hub.AddChannel(client, rd.UserID.String())
	if rd.IsAdmin() {
		h.hub.AddChannel(client, sse.AdminQueueChannel)
	}

	client.Outbound <- sse.SSEMessage{
		Channel: rd.UserID.String(),
		Event:   "connected",
		Data:    map[string]any{"clientId": client.ID},
	}

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

// POST /sse/subscribe
func (h *SSEHandler) Subscribe(c *gin.Context) {
	h.changeSubscription(c, h.hub.AddChannel)
}

// POST /sse/unsubscribe
func (h *SSEHandler) Unsubscribe(c *gin.Context) {
	h.changeSubscription(c, h.hub.RemoveChannel)
}

func (h *SSEHandler) changeSubscription(c *gin.Context, apply func(*sse.SSEClient, string)) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, apierr.Permission("no authenticated principal"))
		return
	}
	var body struct {
		ClientID uuid.UUID `json:"clientId"`
		Channel  string    `json:"channel"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	if body.Channel == "" {
		RespondError(c, apierr.Validation("channel required"))
		return
	}
	client := h.hub.GetClient(body.ClientID)
	if client == nil {
		RespondError(c, apierr.NotFound("no such sse client"))
		return
	}
	if client.UserID != rd.UserID {
		RespondError(c, apierr.Permission("sse client belongs to another user"))
		return
	}
	if !canSubscribe(rd, body.Channel) {
		RespondError(c, apierr.Permission("cannot subscribe to channel %q", body.Channel))
		return
	}
	apply(client, body.Channel)
	RespondOK(c, gin.H{"ok": true})
}

// PUT /sse/permission
// Records the browser's Notification permission for this session. Denied is
// a valid state, not an error.
func (h *SSEHandler) SetBrowserPermission(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, apierr.Permission("no authenticated principal"))
		return
	}
	var body struct {
		ClientID   uuid.UUID `json:"clientId"`
		Permission string    `json:"permission"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	permission := sse.BrowserPermission(body.Permission)
	switch permission {
	case sse.BrowserPermissionDefault, sse.BrowserPermissionGranted, sse.BrowserPermissionDenied:
	default:
		RespondError(c, apierr.Validation("invalid permission %q", body.Permission))
		return
	}
	client := h.hub.GetClient(body.ClientID)
	if client == nil {
		RespondError(c, apierr.NotFound("no such sse client"))
		return
	}
	if client.UserID != rd.UserID {
		RespondError(c, apierr.Permission("sse client belongs to another user"))
		return
	}
	h.hub.SetBrowserPermission(body.ClientID, permission)
	RespondOK(c, gin.H{"permission": permission})
}
