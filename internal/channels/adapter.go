// Package channels normalises transport-specific payloads into canonical
// inbound turns and delivers outbound text back through the same transport.
// Signature checks and API credentials stay inside each adapter; the router
// only ever sees Inbound values.
package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"unicode/utf8"
)

// Channel names.
const (
	ChannelWeb       = "web"
	ChannelLine      = "line"
	ChannelMessenger = "messenger"
)

var (
	// ErrBadSignature is returned when a webhook signature does not verify.
	ErrBadSignature = errors.New("channels: bad signature")
	// ErrBadPayload is returned for bodies that cannot be decoded.
	ErrBadPayload = errors.New("channels: malformed payload")
	// ErrUnknownChannel is returned by Registry for unregistered names.
	ErrUnknownChannel = errors.New("channels: unknown channel")
	// ErrNotConnected is returned when a web customer has no live socket.
	ErrNotConnected = errors.New("channels: customer not connected")
)

// Inbound is one canonical customer message.
type Inbound struct {
	CustomerID     string
	CustomerName   string
	Channel        string
	Text           string
	HasAttachment  bool
	ConversationID string // optional hint from the client
}

// Adapter is implemented once per channel.
type Adapter interface {
	Name() string
	// Normalize verifies and decodes a raw request. A webhook may carry
	// several events, so a slice is returned; events that are not customer
	// messages are dropped.
	Normalize(ctx context.Context, hdr http.Header, body []byte) ([]Inbound, error)
	// Send delivers text to the customer.
	Send(ctx context.Context, customerID, text string) error
}

// Registry looks adapters up by channel name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry registers the given adapters; nil entries are skipped.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.Name()] = a
		}
	}
	return r
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists registered channels in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Send delivers text through the adapter registered for channel.
func (r *Registry) Send(ctx context.Context, channel, customerID, text string) error {
	a, ok := r.Get(channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return a.Send(ctx, customerID, text)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
