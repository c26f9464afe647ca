package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-router/internal/http/middleware"
)

// LeaveFeedbackRequest rates one bot reply.
type LeaveFeedbackRequest struct {
	// CustomerID is read when the X-Customer-ID header is absent.
	CustomerID string `json:"customer_id,omitempty" example:"cust-42"`
	// Value is +1 for a helpful reply and -1 otherwise.
	Value int `json:"value" binding:"required,oneof=-1 1" example:"1"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Rate a bot reply
// @Description Stores a +1 or -1 rating for a bot message in one of the caller's conversations. Each customer rates a message once.
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       X-Customer-ID  header  string  false "Customer ID (alternative to body customer_id)"  example(cust-42)
// @Param       id             path    string  true  "Message ID (UUID)"  format(uuid) example(fa4dfbe0-c3bf-47bd-b32f-d7de221cf43b)
// @Param       body           body    handlers.LeaveFeedbackRequest true "Rating"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     403  {object} handlers.ErrorResponse "Not a bot reply in the caller's conversation"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     409  {object} handlers.ErrorResponse "Already rated"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /messages/{id}/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	var req LeaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		return
	}

	customerID, _ := middleware.Identity(c)
	if customerID == "" {
		customerID = strings.TrimSpace(req.CustomerID)
	}

	// The service rejects a blank customer with ErrMissingCustomer.
	if err := h.feedback.Leave(c.Request.Context(), customerID, c.Param("id"), req.Value); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
