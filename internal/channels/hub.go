package channels

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Frame is a JSON message pushed to a widget socket.
type Frame struct {
	Type           string    `json:"type"` // "turn", "message", "status" or "error"
	ConversationID string    `json:"conversation_id,omitempty"`
	SenderType     string    `json:"sender_type,omitempty"`
	Text           string    `json:"text,omitempty"`
	Status         string    `json:"status,omitempty"`
	Payload        any       `json:"payload,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// frameWriter is the part of *websocket.Conn used by Socket.
type frameWriter interface {
	WriteJSON(v any) error
	Close() error
}

// Socket is one live widget connection.
type Socket struct {
	ID         string
	CustomerID string
	ws         frameWriter
	writeMu    sync.Mutex
}

// NewSocket wraps a websocket connection.
func NewSocket(id, customerID string, ws *websocket.Conn) *Socket {
	return &Socket{ID: id, CustomerID: customerID, ws: ws}
}

// Send writes a frame (safe for concurrent use).
func (s *Socket) Send(f Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(f)
}

// Hub tracks widget sockets per customer. A customer may have several tabs
// open; a push reaches all of them.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[string]*Socket // customerID -> socketID -> socket
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[string]*Socket)}
}

// Add registers s.
func (h *Hub) Add(s *Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[s.CustomerID]
	if m == nil {
		m = make(map[string]*Socket)
		h.conns[s.CustomerID] = m
	}
	m[s.ID] = s
}

// Remove unregisters s.
func (h *Hub) Remove(s *Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.conns[s.CustomerID]; m != nil {
		delete(m, s.ID)
		if len(m) == 0 {
			delete(h.conns, s.CustomerID)
		}
	}
}

// Count reports the number of sockets open for customerID.
func (h *Hub) Count(customerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[customerID])
}

// Push sends f to every socket of customerID and returns how many accepted it.
// Sockets that fail to write are closed and dropped.
func (h *Hub) Push(customerID string, f Frame) int {
	h.mu.RLock()
	targets := make([]*Socket, 0, len(h.conns[customerID]))
	for _, s := range h.conns[customerID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	sent := 0
	for _, s := range targets {
		if err := s.Send(f); err != nil {
			log.Debug().Err(err).Str("socket", s.ID).Msg("widget push failed; dropping socket")
			_ = s.ws.Close()
			h.Remove(s)
			continue
		}
		sent++
	}
	return sent
}
