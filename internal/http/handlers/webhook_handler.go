// Channel webhook handlers.
//
//   - GET  /webhooks/messenger   (subscription verification challenge)
//   - POST /webhooks/{channel}   (LINE / Messenger event delivery)
//
// The adapter verifies the signature and normalizes the body. The webhook is
// acknowledged as soon as the events are decoded; the turns run in the
// background and their replies go back through the adapter's Send.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/support-router/internal/channels"
	"github.com/tbourn/support-router/internal/services"
)

func inboundInput(ev channels.Inbound) services.TurnInput {
	return services.TurnInput{
		CustomerID:     ev.CustomerID,
		CustomerName:   ev.CustomerName,
		Channel:        ev.Channel,
		Text:           sanitizeContent(ev.Text),
		ConversationID: ev.ConversationID,
		HasAttachment:  ev.HasAttachment,
	}
}

// VerifyMessenger godoc
// @ID          verifyMessenger
// @Summary     Messenger webhook verification
// @Description Echoes hub.challenge when hub.verify_token matches the configured token.
// @Tags        Webhooks
// @Produce     plain
// @Param       hub.mode          query  string  true  "subscribe"
// @Param       hub.verify_token  query  string  true  "Verify token"
// @Param       hub.challenge     query  string  true  "Challenge to echo"
// @Success     200  {string} string "challenge"
// @Failure     403  {object} handlers.ErrorResponse "Token mismatch"
// @Failure     404  {object} handlers.ErrorResponse "Channel not configured"
// @Router      /webhooks/messenger [get]
func (h *Handlers) VerifyMessenger(c *gin.Context) {
	a, found := h.opts.Channels.Get(channels.ChannelMessenger)
	m, isMessenger := a.(*channels.Messenger)
	if !found || !isMessenger {
		fail(c, http.StatusNotFound, ErrCodeUnknownChannel, "messenger is not configured")
		return
	}
	challenge, verified := m.VerifyChallenge(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if !verified {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// Webhook godoc
// @ID          channelWebhook
// @Summary     Receive channel events
// @Description Verifies and decodes a LINE or Messenger webhook, acknowledges it, and processes each customer message as a turn.
// @Tags        Webhooks
// @Accept      json
// @Param       channel              path    string  true  "line or messenger"  Enums(line, messenger)
// @Param       X-Line-Signature     header  string  false "LINE signature"
// @Param       X-Hub-Signature-256  header  string  false "Messenger signature"
// @Success     200  {string} string "OK"
// @Failure     400  {object} handlers.ErrorResponse "Malformed payload"
// @Failure     401  {object} handlers.ErrorResponse "Bad signature"
// @Failure     404  {object} handlers.ErrorResponse "Unknown channel"
// @Router      /webhooks/{channel} [post]
func (h *Handlers) Webhook(c *gin.Context) {
	name := c.Param("channel")
	a, found := h.opts.Channels.Get(name)
	if !found || name == channels.ChannelWeb {
		fail(c, http.StatusNotFound, ErrCodeUnknownChannel, "unknown channel")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	}
	events, err := a.Normalize(c.Request.Context(), c.Request.Header, body)
	switch {
	case errors.Is(err, channels.ErrBadSignature):
		fail(c, http.StatusUnauthorized, ErrCodeBadSignature, "signature mismatch")
		return
	case err != nil:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed payload")
		return
	}

	if len(events) > 0 {
		// Detach from the request so the turns outlive the acknowledgement,
		// keeping the trace context.
		ctx := context.WithoutCancel(c.Request.Context())
		h.bg.Add(1)
		go h.processEvents(ctx, a, events)
	}
	c.Status(http.StatusOK)
}

// processEvents runs one webhook's events in order and sends each reply.
func (h *Handlers) processEvents(parent context.Context, a channels.Adapter, events []channels.Inbound) {
	defer h.bg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("channel", a.Name()).Msg("webhook turn panicked")
		}
	}()

	for _, ev := range events {
		ctx, cancel := context.WithTimeout(parent, h.opts.WebhookTurnTimeout)
		h.replyTo(ctx, a, ev)
		cancel()
	}
}

func (h *Handlers) replyTo(ctx context.Context, a channels.Adapter, ev channels.Inbound) {
	lg := log.With().Str("channel", ev.Channel).Str("customer_id", ev.CustomerID).Logger()

	resp, err := h.turns.SubmitTurn(ctx, inboundInput(ev))
	if err != nil {
		lg.Warn().Err(err).Msg("webhook turn rejected")
		return
	}
	// While an agent holds the conversation the customer hears from the agent only.
	if resp.Status == services.StatusHandedOver || resp.Response.MessageText == "" {
		return
	}
	start := time.Now()
	if err := a.Send(ctx, ev.CustomerID, resp.Response.MessageText); err != nil {
		lg.Warn().Err(err).Str("conversation_id", resp.Response.ConversationID).Msg("reply not delivered")
		return
	}
	lg.Debug().Dur("latency", time.Since(start)).Str("status", string(resp.Status)).Msg("reply delivered")
}
