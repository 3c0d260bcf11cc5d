package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
)

func statusFor(err error) int {
	switch {
	case scanerrors.Is(err, scanerrors.ErrInvalidRequest):
		return http.StatusBadRequest
	case scanerrors.Is(err, scanerrors.ErrScanNotFound), scanerrors.Is(err, scanerrors.ErrVulnerabilityNotFound):
		return http.StatusNotFound
	case scanerrors.Is(err, scanerrors.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps err onto a status code. Internal errors are logged and
// answered with fallback instead of the error text.
func respondError(c *gin.Context, log *logger.Logger, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithFields(logger.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error(fallback)
		c.JSON(status, ErrorResponse{Message: fallback})
		return
	}
	c.JSON(status, ErrorResponse{Message: err.Error()})
}
