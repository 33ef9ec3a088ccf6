package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/services"
)

type SessionHandler struct {
	log      *logger.Logger
	workflow *services.Workflow
}

func NewSessionHandler(log *logger.Logger, workflow *services.Workflow) *SessionHandler {
	return &SessionHandler{
		log:      log.With("handler", "SessionHandler"),
		workflow: workflow,
	}
}

type createSessionRequest struct {
	StyleCode       string          `json:"style_code" binding:"required"`
	UserPreferences json.RawMessage `json:"user_preferences"`
}

// POST /api/session/create
// Open a session for a style; the QR code row and slug are issued in the
// same transaction and the PNG renders asynchronously.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", err)
		return
	}
	session, err := h.workflow.Create(c.Request.Context(), req.StyleCode, req.UserPreferences)
	if err != nil {
		h.log.Warn("Create session failed", "style_code", req.StyleCode, "error", err)
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session":      session,
		"redirect_url": h.workflow.RedirectURL(session.QRCode.Slug),
	})
}

// GET /api/session/:uuid
// Detailed view of a session with its assets and latest AI job.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionUUID, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", apperr.Validationf("invalid session uuid"))
		return
	}
	session, assets, job, err := h.workflow.Detail(c.Request.Context(), sessionUUID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	redirectURL := ""
	if session.QRCode != nil {
		redirectURL = h.workflow.RedirectURL(session.QRCode.Slug)
	}
	RespondOK(c, gin.H{
		"session":      session,
		"images":       assets,
		"ai_job":       job,
		"redirect_url": redirectURL,
	})
}

// GET /api/sessions?page=1&page_size=20
// Operator listing, newest activity first.
func (h *SessionHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	sessions, total, err := h.workflow.List(c.Request.Context(), page, pageSize)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"sessions": sessions,
		"total":    total,
		"page":     page,
	})
}

// POST /api/session/decorate
// Mark an AI_READY session as being composed with overlays on the booth.
func (h *SessionHandler) Decorate(c *gin.Context) {
	var req struct {
		SessionUUID string `json:"session_uuid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", err)
		return
	}
	sessionUUID, err := uuid.Parse(req.SessionUUID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", apperr.Validationf("invalid session uuid"))
		return
	}
	session, err := h.workflow.Decorate(c.Request.Context(), sessionUUID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, session)
}

// GET /api/styles
// Styles selectable on the booth.
func (h *SessionHandler) ListStyles(c *gin.Context) {
	styles, err := h.workflow.ActiveStyles(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"styles": styles})
}
