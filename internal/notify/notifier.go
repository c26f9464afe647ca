// Package notify delivers escalation alerts to human operators. Delivery is
// best effort: the Dispatcher bounds every attempt with a timeout and only
// logs failures.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotConfigured is returned by a notifier that lacks its endpoint.
var ErrNotConfigured = errors.New("notify: not configured")

// Alert is the escalation payload.
type Alert struct {
	ConversationID string    `json:"conversation_id"`
	CustomerName   string    `json:"customer_name"`
	Channel        string    `json:"channel"`
	Message        string    `json:"message"`
	Urgency        string    `json:"urgency"`
	ServiceTag     string    `json:"service_tag,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	RuleID         string    `json:"rule_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Notifier delivers alerts to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// title is the one-line summary used by chat notifiers.
func (a Alert) title() string {
	name := a.CustomerName
	if name == "" {
		name = "customer"
	}
	return fmt.Sprintf("[%s] Handover requested by %s", strings.ToUpper(orDefault(a.Urgency, "medium")), name)
}

// details renders the alert body as markdown lines.
func (a Alert) details() string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Message:* %s\n", a.Message)
	if a.Reason != "" {
		fmt.Fprintf(&b, "*Reason:* %s\n", a.Reason)
	}
	if a.ServiceTag != "" {
		fmt.Fprintf(&b, "*Service:* %s\n", a.ServiceTag)
	}
	fmt.Fprintf(&b, "*Channel:* %s\n*Conversation:* %s", orDefault(a.Channel, "web"), a.ConversationID)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
