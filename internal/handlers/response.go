package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondAppError maps the workflow error taxonomy onto transport codes.
// Anything unclassified is an opaque 500.
func RespondAppError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		RespondError(c, http.StatusBadRequest, "validation_failure", err)
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperr.ErrStateConflict):
		RespondError(c, http.StatusConflict, "state_conflict", err)
	case errors.Is(err, apperr.ErrMissingInput):
		RespondError(c, http.StatusUnprocessableEntity, "missing_input", err)
	case errors.Is(err, apperr.ErrNoImageReturned):
		RespondError(c, http.StatusBadGateway, "no_image_returned", err)
	case errors.Is(err, apperr.ErrExternalService):
		RespondError(c, http.StatusBadGateway, "external_service_failure", err)
	case errors.Is(err, apperr.ErrStorage):
		RespondError(c, http.StatusBadGateway, "storage_failure", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	}
}
