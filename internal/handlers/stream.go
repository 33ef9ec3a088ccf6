package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/services"
	"github.com/tigerphoto/photobooth-backend/internal/sse"
)

type StreamHandler struct {
	log      *logger.Logger
	workflow *services.Workflow
	hub      *sse.Hub
}

func NewStreamHandler(log *logger.Logger, workflow *services.Workflow, hub *sse.Hub) *StreamHandler {
	return &StreamHandler{
		log:      log.With("handler", "StreamHandler"),
		workflow: workflow,
		hub:      hub,
	}
}

// GET /api/session/:uuid/events
// Live progress stream for one session. Holds the connection open on the
// request goroutine until the client drops.
func (h *StreamHandler) Events(c *gin.Context) {
	sessionUUID, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", apperr.Validationf("invalid session uuid"))
		return
	}
	// Reject streams for sessions that do not exist so a typo'd uuid fails
	// fast instead of hanging silent.
	if _, _, _, err := h.workflow.Detail(c.Request.Context(), sessionUUID); err != nil {
		RespondAppError(c, err)
		return
	}

	client := h.hub.Subscribe(sessionUUID.String())
	defer h.hub.CloseClient(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
