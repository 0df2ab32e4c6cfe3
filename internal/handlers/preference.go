package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/services"
)

type PreferenceHandler struct {
	log               *logger.Logger
	preferenceService services.PreferenceService
}

func NewPreferenceHandler(log *logger.Logger, preferenceService services.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{
		log:               log.With("handler", "PreferenceHandler"),
		preferenceService: preferenceService,
	}
}

// GET /preferences
func (h *PreferenceHandler) Get(c *gin.Context) {
	pref, err := h.preferenceService.Get(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"preferences": pref})
}

// PUT /preferences
func (h *PreferenceHandler) Update(c *gin.Context) {
	var body services.PreferenceUpdateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	pref, err := h.preferenceService.Update(c.Request.Context(), body)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"preferences": pref})
}
