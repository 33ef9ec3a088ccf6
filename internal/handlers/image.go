package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/services"
)

// maxUploadBytes caps a single multipart image upload.
const maxUploadBytes = 25 << 20

type ImageHandler struct {
	log      *logger.Logger
	workflow *services.Workflow
}

func NewImageHandler(log *logger.Logger, workflow *services.Workflow) *ImageHandler {
	return &ImageHandler{
		log:      log.With("handler", "ImageHandler"),
		workflow: workflow,
	}
}

// POST /api/image/upload
// Multipart: session_uuid field + image file. Stores a new ORIGINAL asset;
// re-uploads replace the effective capture.
func (h *ImageHandler) Upload(c *gin.Context) {
	sessionUUID, filename, contentType, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	session, asset, err := h.workflow.Upload(c.Request.Context(), sessionUUID, filename, contentType, data)
	if err != nil {
		h.log.Warn("Upload failed", "session_uuid", sessionUUID, "error", err)
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session": session,
		"image":   asset,
	})
}

// POST /api/image/finalize
// Multipart: session_uuid field + image file. Stores the FINAL composite
// and closes the session; a second call is rejected.
func (h *ImageHandler) Finalize(c *gin.Context) {
	sessionUUID, filename, contentType, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	session, asset, err := h.workflow.Finalize(c.Request.Context(), sessionUUID, filename, contentType, data)
	if err != nil {
		h.log.Warn("Finalize failed", "session_uuid", sessionUUID, "error", err)
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session": session,
		"image":   asset,
	})
}

func (h *ImageHandler) readUpload(c *gin.Context) (uuid.UUID, string, string, []byte, bool) {
	sessionUUID, err := uuid.Parse(c.PostForm("session_uuid"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", apperr.Validationf("invalid session uuid"))
		return uuid.Nil, "", "", nil, false
	}
	fileHeader, err := c.FormFile("image")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", apperr.Validationf("image file is required"))
		return uuid.Nil, "", "", nil, false
	}
	if fileHeader.Size > maxUploadBytes {
		RespondError(c, http.StatusBadRequest, "validation_failure", apperr.Validationf("image exceeds %d bytes", maxUploadBytes))
		return uuid.Nil, "", "", nil, false
	}
	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", err)
		return uuid.Nil, "", "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_failure", err)
		return uuid.Nil, "", "", nil, false
	}
	return sessionUUID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data, true
}
