package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
)

var errorStatus = map[apperr.Kind]int{
	apperr.KindUnauthenticated:   http.StatusUnauthorized,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindInvalidTransition: http.StatusConflict,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindValidationFailed:  http.StatusBadRequest,
	apperr.KindNotConfigured:     http.StatusUnprocessableEntity,
	apperr.KindInternal:          http.StatusInternalServerError,
}

// statusFor maps an error to its HTTP status and client-facing message.
// Authorization failures and internal errors get fixed messages.
func statusFor(err error) (int, apperr.Kind, string) {
	kind := apperr.KindOf(err)
	status, ok := errorStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	switch kind {
	case apperr.KindUnauthenticated:
		return status, kind, "authentication required"
	case apperr.KindForbidden:
		return status, kind, "insufficient permissions"
	case apperr.KindInternal:
		return status, kind, "internal error"
	default:
		return status, kind, err.Error()
	}
}

// abortWithError writes the error response and stops the handler chain
func (h *Handlers) abortWithError(c *gin.Context, err error) {
	status, kind, msg := statusFor(err)
	if kind == apperr.KindInternal {
		h.logger.Error("Request failed", "error", err, "path", c.FullPath())
	}
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   msg,
		Kind:    string(kind),
	})
}

// badRequest reports a malformed request body or query
func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Kind:    string(apperr.KindValidationFailed),
	})
}

var errMissingPrincipal = errors.New("principal missing from request context")
