// Conversation HTTP handlers (customer side).
//
// This file exposes the endpoints the widget calls besides turns:
//   - GET  /conversations/{id}/messages   (history, cursor-paginated, ETag support)
//   - POST /conversations/{id}/contact    (lead details for ask_contact)
//
// A customer only ever sees their own conversations; someone else's id is
// reported as not found.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/http/middleware"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/services"
	"github.com/tbourn/support-router/internal/utils"
)

// ContactRequest is the JSON payload of the contact form.
type ContactRequest struct {
	CustomerID   string `json:"customer_id,omitempty" example:"cust-42"`
	Name         string `json:"name,omitempty" binding:"max=255" example:"Dana Smith"`
	Email        string `json:"email,omitempty" binding:"omitempty,email" example:"dana@example.com"`
	Phone        string `json:"phone,omitempty" binding:"max=64" example:"+44 20 7946 0000"`
	Company      string `json:"company,omitempty" binding:"max=255" example:"Acme Foods"`
	TargetMarket string `json:"target_market,omitempty" binding:"max=255" example:"EU"`
	Product      string `json:"product,omitempty" binding:"max=255" example:"protein bars"`
}

func (r ContactRequest) info() domain.ContactInfo {
	return domain.ContactInfo{
		Name:         strings.TrimSpace(r.Name),
		Email:        strings.TrimSpace(r.Email),
		Phone:        strings.TrimSpace(r.Phone),
		Company:      strings.TrimSpace(r.Company),
		TargetMarket: strings.TrimSpace(r.TargetMarket),
		Product:      strings.TrimSpace(r.Product),
	}
}

func (r ContactRequest) empty() bool {
	return r.info() == domain.ContactInfo{}
}

// history serves one page of a transcript with a weak ETag. Shared by the
// customer and operator routes.
func (h *Handlers) history(c *gin.Context, conversationID string) {
	ctx := c.Request.Context()
	cursor := strings.TrimSpace(c.Query("cursor"))
	limit := utils.IntOr(c.Query("limit"), services.DefaultHistoryLimit)

	// ETag pre-check (best effort).
	if h.opts.DB != nil {
		if count, latest, err := repo.MessagesStats(ctx, h.opts.DB, conversationID); err == nil {
			if weakETag(c, fmt.Sprintf("messages:%s:%d:%d:%s:%d", conversationID, count, unixOrZero(latest), cursor, limit)) {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, err := h.convs.History(ctx, conversationID, cursor, limit)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	msgs := page.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	ok(c, http.StatusOK, HistoryResponse{Messages: msgs, NextCursor: page.NextCursor, HasMore: page.HasMore})
}

// ownConversation loads a conversation and checks it belongs to the calling
// customer. It writes the error response itself and returns nil on failure.
func (h *Handlers) ownConversation(c *gin.Context, customerID string) *domain.Conversation {
	if customerID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "customer_id required")
		return nil
	}
	conv, err := h.convs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return nil
	}
	if conv.CustomerID != customerID {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return nil
	}
	return conv
}

// ListHistory godoc
// @ID          listHistory
// @Summary     List messages in a conversation
// @Description Returns messages oldest to newest. Pass next_cursor back as cursor to fetch the next older page.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-Customer-ID  header  string  false "Customer ID (or customer_id query)"  example(cust-42)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       cursor         query   string  false "Opaque cursor from a previous page"
// @Param       limit          query   int     false "Messages per page"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.HistoryResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	customerID, _ := middleware.Identity(c)
	conv := h.ownConversation(c, customerID)
	if conv == nil {
		return
	}
	h.history(c, conv.ID)
}

// SubmitContact godoc
// @ID          submitContact
// @Summary     Submit contact details
// @Description Stores lead details on the conversation and clears the pending contact request. Empty fields keep earlier values.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       X-Customer-ID  header  string  false "Customer ID (or body customer_id)"  example(cust-42)
// @Param       id             path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body           body    handlers.ContactRequest  true  "Contact details"
//
// @Success     200  {object} domain.Conversation
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/contact [post]
func (h *Handlers) SubmitContact(c *gin.Context) {
	customerID, _ := middleware.Identity(c)

	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid contact details")
		return
	}
	if req.empty() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at least one contact field required")
		return
	}
	if customerID == "" {
		customerID = strings.TrimSpace(req.CustomerID)
	}
	if customerID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "customer_id required")
		return
	}

	conv, err := h.convs.SubmitContact(c.Request.Context(), c.Param("id"), customerID, req.info())
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, conv)
}
