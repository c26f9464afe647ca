// Package handlers provides HTTP handler implementations for the public API,
// the operator API, channel webhooks and the widget websocket.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses (including conditional
// and replayed responses).
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/channels"
	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/services"
	"github.com/tbourn/support-router/internal/utils"
)

//
// Service contracts (context-aware)
//

// TurnService runs customer turns. *services.RouterService implements it.
type TurnService interface {
	SubmitTurn(ctx context.Context, in services.TurnInput) (*services.TurnResponse, error)
}

// ConversationService covers history, listing, contact capture and operator
// actions on a conversation.
type ConversationService interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	List(ctx context.Context, f services.ListFilter, page, pageSize int) ([]domain.Conversation, int64, error)
	History(ctx context.Context, conversationID, cursor string, limit int) (*repo.MessagePage, error)
	SubmitContact(ctx context.Context, conversationID, customerID string, in domain.ContactInfo) (*domain.Conversation, error)
	AgentReply(ctx context.Context, conversationID, agentName, text string) (*domain.Message, bool, error)
	Close(ctx context.Context, conversationID string) error
	Delete(ctx context.Context, conversationID string) error
}

// HandoverService moves conversations between automation and agents.
type HandoverService interface {
	Takeover(ctx context.Context, conversationID, agentName string) (*domain.HandoverRecord, bool, error)
	Release(ctx context.Context, conversationID string) (bool, error)
	History(ctx context.Context, conversationID string) ([]domain.HandoverRecord, error)
}

// FeedbackService captures customer ratings on bot messages.
type FeedbackService interface {
	// Leave submits a feedback value (-1 or 1) for messageID by customerID.
	Leave(ctx context.Context, customerID, messageID string, value int) error
}

//
// Handler wiring
//

// Options carries the transport-side dependencies.
type Options struct {
	// DB backs the idempotency store and the list ETags; nil disables both.
	DB *gorm.DB
	// IdempotencyTTL is how long a stored turn response can be replayed.
	IdempotencyTTL time.Duration
	// Channels resolves webhook adapters and delivers webhook replies.
	Channels *channels.Registry
	// Hub tracks widget sockets.
	Hub *channels.Hub
	// CheckOrigin filters websocket upgrades; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
	// WebhookTurnTimeout bounds one asynchronously processed webhook turn.
	WebhookTurnTimeout time.Duration
}

// Handlers groups the HTTP endpoints. It depends on service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	turns     TurnService
	convs     ConversationService
	handovers HandoverService
	feedback  FeedbackService
	opts      Options

	upgrader websocket.Upgrader
	bg       sync.WaitGroup
}

// New constructs and returns a Handlers instance bound to the given services.
func New(turns TurnService, convs ConversationService, handovers HandoverService, feedback FeedbackService, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.WebhookTurnTimeout <= 0 {
		opts.WebhookTurnTimeout = time.Minute
	}
	if opts.Hub == nil {
		opts.Hub = channels.NewHub()
	}
	if opts.Channels == nil {
		opts.Channels = channels.NewRegistry(channels.NewWeb(opts.Hub))
	}
	h := &Handlers{
		turns:     turns,
		convs:     convs,
		handovers: handovers,
		feedback:  feedback,
		opts:      opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 << 10,
		WriteBufferSize: 4 << 10,
		CheckOrigin:     opts.CheckOrigin,
	}
	if h.upgrader.CheckOrigin == nil {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return h
}

// Wait blocks until background webhook turns have finished or ctx is done.
func (h *Handlers) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// HistoryResponse is one page of a transcript, oldest first.
type HistoryResponse struct {
	Messages []domain.Message `json:"messages"`
	// NextCursor fetches the next older page; empty when HasMore is false.
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

//
// Helpers
//

// pageParams reads page and page_size from the query string.
func pageParams(c *gin.Context) utils.Page {
	return utils.NewPage(
		utils.IntOr(c.Query("page"), 1),
		utils.IntOr(c.Query("page_size"), services.DefaultPageSize),
		services.DefaultPageSize,
		services.MaxPageSize,
	)
}
