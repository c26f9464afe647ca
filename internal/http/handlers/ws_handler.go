// Widget websocket handler.
//
//   - GET /ws/widget?customer_id=…
//
// Every text frame the widget sends is a WebMessage and runs as a turn; the
// outcome comes back as a "turn" frame. Agent replies and operator status
// changes reach the same socket through the hub.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/support-router/internal/channels"
	"github.com/tbourn/support-router/internal/domain"
)

const (
	wsReadLimit = 64 << 10
	wsPongWait  = 60 * time.Second
	wsPingEvery = wsPongWait * 9 / 10
)

// Widget godoc
// @ID          widgetSocket
// @Summary     Widget websocket
// @Description Upgrades to a websocket. Inbound frames are WebMessage turns; outbound frames are turn results, agent replies and status changes.
// @Tags        Turns
// @Param       customer_id  query  string  true  "Customer ID"
// @Success     101  {string} string "Switching Protocols"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /ws/widget [get]
func (h *Handlers) Widget(c *gin.Context) {
	customerID := strings.TrimSpace(c.Query("customer_id"))
	if customerID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "customer_id required")
		return
	}
	if !websocket.IsWebSocketUpgrade(c.Request) {
		fail(c, http.StatusBadRequest, ErrCodeWebsocketNotAllowed, "websocket upgrade required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Debug().Err(err).Str("customer_id", customerID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sock := channels.NewSocket(uuid.NewString(), customerID, conn)
	h.opts.Hub.Add(sock)
	defer h.opts.Hub.Remove(sock)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	ctx := c.Request.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("customer_id", customerID).Msg("widget socket closed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg channels.WebMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = sock.Send(errorFrame("invalid message"))
			continue
		}
		msg.CustomerID = customerID // the socket's identity wins over the frame's

		resp, err := h.turns.SubmitTurn(ctx, inboundInput(msg.Inbound()))
		if err != nil {
			_ = sock.Send(errorFrame(err.Error()))
			continue
		}
		if err := sock.Send(channels.Frame{
			Type:           "turn",
			ConversationID: resp.Response.ConversationID,
			SenderType:     domain.SenderBot,
			Text:           resp.Response.MessageText,
			Status:         string(resp.Status),
			Payload:        resp,
			Timestamp:      time.Now().UTC(),
		}); err != nil {
			return
		}
	}
}

func errorFrame(text string) channels.Frame {
	return channels.Frame{Type: "error", Text: text, Timestamp: time.Now().UTC()}
}

// keepAlive pings until done is closed or a ping fails.
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(wsPingEvery)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
