package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebMessage is the web widget's turn payload, used by the REST endpoint and
// by inbound websocket frames.
type WebMessage struct {
	CustomerID     string `json:"customer_id"`
	CustomerName   string `json:"customer_name"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	HasAttachment  bool   `json:"has_attachment,omitempty"`
}

// Inbound converts m to the canonical form.
func (m WebMessage) Inbound() Inbound {
	return Inbound{
		CustomerID:     strings.TrimSpace(m.CustomerID),
		CustomerName:   strings.TrimSpace(m.CustomerName),
		Channel:        ChannelWeb,
		Text:           m.Message,
		HasAttachment:  m.HasAttachment,
		ConversationID: strings.TrimSpace(m.ConversationID),
	}
}

// Web is the adapter for the embedded chat widget. Replies to REST turns go
// back in the HTTP response; Send is used for agent replies and reaches the
// customer's open widget sockets.
type Web struct {
	Hub *Hub
	now func() time.Time
}

// NewWeb returns a web adapter pushing through hub.
func NewWeb(hub *Hub) *Web {
	if hub == nil {
		hub = NewHub()
	}
	return &Web{Hub: hub, now: time.Now}
}

func (w *Web) Name() string { return ChannelWeb }

// Normalize implements Adapter.
func (w *Web) Normalize(_ context.Context, _ http.Header, body []byte) ([]Inbound, error) {
	var m WebMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return []Inbound{m.Inbound()}, nil
}

// Send implements Adapter.
func (w *Web) Send(_ context.Context, customerID, text string) error {
	n := w.Hub.Push(customerID, Frame{
		Type:       "message",
		SenderType: "agent",
		Text:       text,
		Timestamp:  w.now().UTC(),
	})
	if n == 0 {
		return ErrNotConnected
	}
	return nil
}
