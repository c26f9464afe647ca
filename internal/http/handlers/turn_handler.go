// Turn HTTP handler.
//
// This file exposes the web channel's turn endpoint:
//   - POST /turns   (submit one customer message, receive the routing outcome)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a completed turn is
// stored for (customer, channel, key), the stored response is returned
// byte-for-byte with `Idempotency-Replayed: true` and the turn is not run
// again. Turns that ended in status "error" are not stored, so a retry gets
// a fresh attempt.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-router/internal/http/middleware"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/rules"
	"github.com/tbourn/support-router/internal/services"
)

//
// DTOs
//

// TurnHints are optional lead details the widget already knows.
type TurnHints struct {
	Company      string `json:"company,omitempty" example:"Acme Foods"`
	TargetMarket string `json:"target_market,omitempty" example:"EU"`
	Product      string `json:"product,omitempty" example:"protein bars"`
}

// TurnRequest is the JSON payload for submitting a customer message.
type TurnRequest struct {
	CustomerID     string     `json:"customer_id" example:"cust-42"`
	CustomerName   string     `json:"customer_name,omitempty" example:"Dana"`
	Channel        string     `json:"channel,omitempty" example:"web"`
	Message        string     `json:"message" example:"How long does product registration take?"`
	ConversationID string     `json:"conversation_id,omitempty" format:"uuid"`
	HasAttachment  bool       `json:"has_attachment,omitempty"`
	Hints          *TurnHints `json:"hints,omitempty"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes customer text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func (r TurnRequest) input() services.TurnInput {
	in := services.TurnInput{
		CustomerID:     strings.TrimSpace(r.CustomerID),
		CustomerName:   strings.TrimSpace(r.CustomerName),
		Channel:        strings.ToLower(strings.TrimSpace(r.Channel)),
		Text:           sanitizeContent(r.Message),
		ConversationID: strings.TrimSpace(r.ConversationID),
		HasAttachment:  r.HasAttachment,
	}
	if in.Channel == "" {
		in.Channel = "web"
	}
	if r.Hints != nil {
		in.Hints = rules.Hints{
			CompanyName:  strings.TrimSpace(r.Hints.Company),
			TargetMarket: strings.TrimSpace(r.Hints.TargetMarket),
			Product:      strings.TrimSpace(r.Hints.Product),
		}
	}
	return in
}

//
// Handlers
//

// SubmitTurn godoc
// @ID          submitTurn
// @Summary     Submit a customer message
// @Description Routes one customer message: answers it, asks for contact details, or hands the conversation to an agent.
// @Description Internal failures still return 200 with status "error" and an apology text.
// @Description Supports idempotency via the Idempotency-Key header (same key → same stored response).
// @Tags        Turns
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.TurnRequest  true  "Customer message"
//
// @Success     200  {object}  services.TurnResponse   "Routing outcome"
// @Header      200  {string}  Idempotency-Replayed    "true when served from the idempotency store"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /turns [post]
func (h *Handlers) SubmitTurn(c *gin.Context) {
	ctx := c.Request.Context()

	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in := req.input()
	middleware.SetCustomer(c, in.CustomerID, in.Channel)

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if idemKey != "" && in.CustomerID != "" && h.opts.DB != nil {
		rec, err := repo.GetIdempotency(ctx, h.opts.DB, in.CustomerID, in.Channel, idemKey, time.Now().UTC())
		if err == nil && rec != nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Response)
			return
		}
	}

	resp, err := h.turns.SubmitTurn(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingCustomer):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "customer_id required")
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		case errors.Is(err, services.ErrMessageTooLong):
			fail(c, http.StatusBadRequest, ErrCodeMessageTooLong, "message too long")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeTurnFailed, "turn failed")
		}
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeTurnFailed, "turn failed")
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" && h.opts.DB != nil && resp.Status != services.StatusError {
		if _, err := repo.CreateIdempotency(ctx, h.opts.DB, in.CustomerID, in.Channel, idemKey, body, http.StatusOK, h.opts.IdempotencyTTL); err != nil && !repo.IsDuplicate(err) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotent turn failed")
		}
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
