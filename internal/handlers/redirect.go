package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/services"
)

type RedirectHandler struct {
	log      *logger.Logger
	workflow *services.Workflow
}

func NewRedirectHandler(log *logger.Logger, workflow *services.Workflow) *RedirectHandler {
	return &RedirectHandler{
		log:      log.With("handler", "RedirectHandler"),
		workflow: workflow,
	}
}

// GET /s/:slug
// The URL printed into every QR code. 302 to the final image once bound;
// a friendly not-ready page before that.
func (h *RedirectHandler) Resolve(c *gin.Context) {
	result, err := h.workflow.ResolveRedirect(c.Request.Context(), c.Param("slug"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if result.Pending {
		c.JSON(http.StatusOK, gin.H{
			"status":  "pending",
			"message": "Your photo is still being prepared. Try again in a moment.",
		})
		return
	}
	c.Redirect(http.StatusFound, result.TargetURL)
}

// GET /api/qr/:slug
// Issuance status of a QR code, for polling booth clients.
func (h *RedirectHandler) QRStatus(c *gin.Context) {
	code, err := h.workflow.QRStatus(c.Request.Context(), c.Param("slug"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"qr_code":      code,
		"redirect_url": h.workflow.RedirectURL(code.Slug),
	})
}
