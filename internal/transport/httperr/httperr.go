// Package httperr maps application error categories to HTTP responses.
package httperr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alanyang/job-dispatch/internal/apperr"
)

// Status returns the HTTP status for err's category.
func Status(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Write renders err. Internal failures are logged and answered with a generic message so driver or
// agent details never reach the caller.
func Write(c *gin.Context, err error) {
	code := Status(err)
	if code == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(code, gin.H{"error": "internal error", "kind": apperr.Kind(err)})
		return
	}
	c.JSON(code, gin.H{"error": err.Error(), "kind": apperr.Kind(err)})
}

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": "bad_request"})
}
