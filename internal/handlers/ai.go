package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/services"
)

type AIHandler struct {
	log      *logger.Logger
	workflow *services.Workflow
	webhooks *services.WebhookService
}

func NewAIHandler(log *logger.Logger, workflow *services.Workflow, webhooks *services.WebhookService) *AIHandler {
	return &AIHandler{
		log:      log.With("handler", "AIHandler"),
		workflow: workflow,
		webhooks: webhooks,
	}
}

type transformRequest struct {
	SessionUUID string `json:"session_uuid" binding:"required"`
}

// POST /api/ai/transform
// Queue stylization of the session's latest original capture.
func (h *AIHandler) Transform(c *gin.Context) {
	sessionUUID, ok := h.bindSessionUUID(c)
	if !ok {
		return
	}
	job, err := h.workflow.RequestTransform(c.Request.Context(), sessionUUID)
	if err != nil {
		h.log.Warn("Transform request failed", "session_uuid", sessionUUID, "error", err)
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// POST /api/ai/retry
// Re-queue stylization after a failed attempt, as a fresh AI job.
func (h *AIHandler) Retry(c *gin.Context) {
	sessionUUID, ok := h.bindSessionUUID(c)
	if !ok {
		return
	}
	job, err := h.workflow.RetryTransform(c.Request.Context(), sessionUUID)
	if err != nil {
		h.log.Warn("Transform retry failed", "session_uuid", sessionUUID, "error", err)
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// POST /api/ai/webhook
// Provider callback, correlated by request_id. Terminal transitions on an
// already settled job come back as 409.
func (h *AIHandler) Webhook(c *gin.Context) {
	var payload services.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", err)
		return
	}
	if err := h.webhooks.Ingest(c.Request.Context(), payload); err != nil {
		h.log.Warn("Webhook ingest failed", "request_id", payload.RequestID, "error", err)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"ok": true})
}

func (h *AIHandler) bindSessionUUID(c *gin.Context) (uuid.UUID, bool) {
	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", err)
		return uuid.Nil, false
	}
	sessionUUID, err := uuid.Parse(req.SessionUUID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", apperr.Validationf("invalid session uuid"))
		return uuid.Nil, false
	}
	return sessionUUID, true
}
