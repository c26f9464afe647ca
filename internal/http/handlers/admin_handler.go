// Operator HTTP handlers.
//
// Mounted under /admin behind AdminAuth:
//   - GET    /admin/conversations                  (dashboard list, paginated, ETag)
//   - GET    /admin/conversations/{id}
//   - GET    /admin/conversations/{id}/messages
//   - GET    /admin/conversations/{id}/handovers
//   - POST   /admin/conversations/{id}/takeover
//   - POST   /admin/conversations/{id}/release
//   - POST   /admin/conversations/{id}/close
//   - POST   /admin/conversations/{id}/messages    (agent reply)
//   - DELETE /admin/conversations/{id}
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/support-router/internal/channels"
	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/http/middleware"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/services"
)

//
// DTOs
//

// ListConversationsResponse wraps a page of conversations and pagination information.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// TakeoverRequest optionally names the agent; X-Agent-Name is used otherwise.
type TakeoverRequest struct {
	AgentName string `json:"agent_name,omitempty" binding:"max=128" example:"maria"`
}

// TakeoverResponse reports the active handover. Created is false when the
// conversation was already handed over.
type TakeoverResponse struct {
	Handover *domain.HandoverRecord `json:"handover"`
	Created  bool                   `json:"created"`
}

// ReleaseResponse reports whether an active handover was closed.
type ReleaseResponse struct {
	Released bool `json:"released"`
}

// AgentReplyRequest is the JSON payload of an agent message.
type AgentReplyRequest struct {
	AgentName string `json:"agent_name,omitempty" binding:"max=128" example:"maria"`
	Text      string `json:"text" binding:"required" example:"Hi Dana, I can help with the registration."`
}

// AgentReplyResponse carries the stored message and whether the channel
// accepted it.
type AgentReplyResponse struct {
	Message   *domain.Message `json:"message"`
	Delivered bool            `json:"delivered"`
}

// HandoversResponse lists the handover records of a conversation.
type HandoversResponse struct {
	Handovers []domain.HandoverRecord `json:"handovers"`
}

func agentName(c *gin.Context, fromBody string) string {
	if n := strings.TrimSpace(fromBody); n != "" {
		return n
	}
	return middleware.AgentName(c)
}

// pushStatus tells open widget sockets about an operator state change.
func (h *Handlers) pushStatus(ctx context.Context, conversationID, status string) {
	conv, err := h.convs.Get(ctx, conversationID)
	if err != nil || conv.Channel != channels.ChannelWeb {
		return
	}
	h.opts.Hub.Push(conv.CustomerID, channels.Frame{
		Type:           "status",
		ConversationID: conv.ID,
		Status:         status,
		Timestamp:      time.Now().UTC(),
	})
}

//
// Handlers
//

// AdminListConversations godoc
// @ID          adminListConversations
// @Summary     List conversations
// @Description Returns a page of conversations, most recently updated first. Supports weak ETag via If-None-Match.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
//
// @Param       status         query  string  false "active or closed"
// @Param       channel        query  string  false "web, line or messenger"
// @Param       handover_mode  query  string  false "auto, ai_suggested or manual"
// @Param       customer_id    query  string  false "Customer ID"
// @Param       page           query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListConversationsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/conversations [get]
func (h *Handlers) AdminListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	f := services.ListFilter{
		Status:       strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Channel:      strings.ToLower(strings.TrimSpace(c.Query("channel"))),
		HandoverMode: strings.ToLower(strings.TrimSpace(c.Query("handover_mode"))),
		CustomerID:   strings.TrimSpace(c.Query("customer_id")),
	}
	switch f.Status {
	case "", domain.ConversationActive, domain.ConversationClosed:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be active or closed")
		return
	}
	switch f.HandoverMode {
	case "", domain.ModeAuto, domain.ModeAISuggested, domain.ModeManual:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "handover_mode must be auto, ai_suggested or manual")
		return
	}
	pg := pageParams(c)

	// ETag pre-check (best effort).
	if h.opts.DB != nil {
		rf := repo.ConversationFilter{Status: f.Status, Channel: f.Channel, HandoverMode: f.HandoverMode, CustomerID: f.CustomerID}
		if count, latest, err := repo.ConversationsStats(ctx, h.opts.DB, rf); err == nil {
			key := fmt.Sprintf("conversations:%s:%s:%s:%s:%d:%d:%d:%d",
				f.Status, f.Channel, f.HandoverMode, f.CustomerID, pg.Number, pg.Size, count, unixOrZero(latest))
			if weakETag(c, key) {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convs.List(ctx, f, pg.Number, pg.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list conversations")
		return
	}
	if items == nil {
		items = []domain.Conversation{}
	}

	totalPages := int((total + int64(pg.Size) - 1) / int64(pg.Size))
	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination: Pagination{
			Page:       pg.Number,
			PageSize:   pg.Size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    pg.Number < totalPages,
		},
	})
}

// AdminGetConversation godoc
// @ID          adminGetConversation
// @Summary     Get a conversation
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       id   path  string  true  "Conversation ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Conversation
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /admin/conversations/{id} [get]
func (h *Handlers) AdminGetConversation(c *gin.Context) {
	conv, err := h.convs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, conv)
}

// AdminListMessages godoc
// @ID          adminListMessages
// @Summary     Read a transcript
// @Description Same paging as the customer history endpoint, without the ownership check.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       id      path   string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       cursor  query  string  false "Opaque cursor from a previous page"
// @Param       limit   query  int     false "Messages per page"  minimum(1) maximum(200) default(50)
// @Success     200  {object} handlers.HistoryResponse
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /admin/conversations/{id}/messages [get]
func (h *Handlers) AdminListMessages(c *gin.Context) {
	h.history(c, strings.TrimSpace(c.Param("id")))
}

// AdminListHandovers godoc
// @ID          adminListHandovers
// @Summary     List handover records
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       id   path  string  true  "Conversation ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.HandoversResponse
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /admin/conversations/{id}/handovers [get]
func (h *Handlers) AdminListHandovers(c *gin.Context) {
	items, err := h.handovers.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.HandoverRecord{}
	}
	ok(c, http.StatusOK, HandoversResponse{Handovers: items})
}

// Takeover godoc
// @ID          takeover
// @Summary     Take over a conversation
// @Description Ensures an active handover to an agent exists. Idempotent: an existing handover is returned with created=false.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    AdminToken
// @Param       X-Agent-Name  header  string  false "Agent name (default operator)"
// @Param       id            path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body          body    handlers.TakeoverRequest  false "Agent override"
// @Success     200  {object} handlers.TakeoverResponse
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     409  {object} handlers.ErrorResponse "Conversation closed"
// @Router      /admin/conversations/{id}/takeover [post]
func (h *Handlers) Takeover(c *gin.Context) {
	var req TakeoverRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	rec, created, err := h.handovers.Takeover(ctx, id, agentName(c, req.AgentName))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	if created {
		h.pushStatus(ctx, id, string(services.StatusHandedOver))
	}
	ok(c, http.StatusOK, TakeoverResponse{Handover: rec, Created: created})
}

// Release godoc
// @ID          release
// @Summary     Release a conversation back to automation
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
// @Param       id   path  string  true  "Conversation ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.ReleaseResponse
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /admin/conversations/{id}/release [post]
func (h *Handlers) Release(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	released, err := h.handovers.Release(ctx, id)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	if released {
		h.pushStatus(ctx, id, "released")
	}
	ok(c, http.StatusOK, ReleaseResponse{Released: released})
}

// CloseConversation godoc
// @ID          closeConversation
// @Summary     Close a conversation
// @Description Releases any active handover and closes the conversation; the customer's next message opens a new one.
// @Tags        Admin
// @Security    AdminToken
// @Param       id   path  string  true  "Conversation ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /admin/conversations/{id}/close [post]
func (h *Handlers) CloseConversation(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.convs.Close(ctx, id); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	h.pushStatus(ctx, id, domain.ConversationClosed)
	noContent(c)
}

// AgentReply godoc
// @ID          agentReply
// @Summary     Reply as an agent
// @Description Stores an agent message and delivers it through the conversation's channel. Replying takes the conversation over.
// @Description delivered=false means the message is stored but the channel did not accept it.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    AdminToken
// @Param       X-Agent-Name  header  string  false "Agent name (default operator)"
// @Param       id            path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body          body    handlers.AgentReplyRequest  true  "Reply"
// @Success     201  {object} handlers.AgentReplyResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     409  {object} handlers.ErrorResponse "Conversation closed"
// @Failure     503  {object} handlers.ErrorResponse "Channel unavailable"
// @Router      /admin/conversations/{id}/messages [post]
func (h *Handlers) AgentReply(c *gin.Context) {
	var req AgentReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	agent := agentName(c, req.AgentName)
	msg, delivered, err := h.convs.AgentReply(c.Request.Context(), c.Param("id"), agent, req.Text)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	if !delivered {
		log.Warn().Str("conversation_id", msg.ConversationID).Str("agent", agent).Msg("agent reply stored but not delivered")
	}
	ok(c, http.StatusCreated, AgentReplyResponse{Message: msg, Delivered: delivered})
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Deletes messages, then handover records, then the conversation.
// @Tags        Admin
// @Security    AdminToken
// @Param       id   path  string  true  "Conversation ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Delete failed"
// @Router      /admin/conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	if err := h.convs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		serviceError(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}
