package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-router/internal/http/middleware"
	"github.com/tbourn/support-router/internal/services"
)

// ErrorResponse is the error envelope every endpoint returns.
type ErrorResponse struct {
	// Echo of X-Request-ID for correlating client reports with logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message, safe to show to customers
	Message string `json:"message" example:"conversation not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().Int("status", status).Str("code", code).Str("message", msg).Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// serviceErrors maps service sentinels to responses, first match wins.
var serviceErrors = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{services.ErrConversationNotFound, http.StatusNotFound, ErrCodeNotFound, "conversation not found"},
	{services.ErrMessageNotFound, http.StatusNotFound, ErrCodeNotFound, "message not found"},
	{services.ErrConversationClosed, http.StatusConflict, ErrCodeConversationClosed, "conversation is closed"},
	{services.ErrInvalidCursor, http.StatusBadRequest, ErrCodeInvalidCursor, "invalid cursor"},
	{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeBadRequest, "text required"},
	{services.ErrMessageTooLong, http.StatusBadRequest, ErrCodeMessageTooLong, "text too long"},
	{services.ErrChannelUnavailable, http.StatusServiceUnavailable, ErrCodeChannelUnavailable, "channel unavailable"},
	{services.ErrMissingCustomer, http.StatusBadRequest, ErrCodeBadRequest, "customer_id required"},
	{services.ErrInvalidFeedback, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1"},
	{services.ErrForbiddenFeedback, http.StatusForbidden, ErrCodeForbidden, "cannot leave feedback on this message"},
	{services.ErrDuplicateFeedback, http.StatusConflict, ErrCodeConflict, "feedback already exists"},
}

// serviceError writes the response for a known service sentinel, or a 500
// carrying fallbackCode. The underlying error is logged, never returned.
func serviceError(c *gin.Context, err error, fallbackCode string) {
	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			fail(c, se.status, se.code, se.msg)
			return
		}
	}
	lg := middleware.LoggerFrom(c)
	lg.Error().Err(err).Str("code", fallbackCode).Msg("service call failed")
	fail(c, http.StatusInternalServerError, fallbackCode, "internal error")
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// weakETag sets a weak ETag built from parts and reports whether the
// request's If-None-Match already names it.
func weakETag(c *gin.Context, parts string) bool {
	etag := `W/"` + parts + `"`
	c.Header("ETag", etag)
	inm := strings.TrimSpace(c.GetHeader("If-None-Match"))
	return inm != "" && inm == etag
}

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}
