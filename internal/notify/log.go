package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log writes alerts to the application log. It is the notifier of last
// resort when no external destination is configured.
type Log struct {
	Logger *zerolog.Logger
}

func (n *Log) Name() string { return "log" }

// Notify implements Notifier.
func (n *Log) Notify(_ context.Context, a Alert) error {
	l := n.Logger
	if l == nil {
		l = &log.Logger
	}
	l.Warn().
		Str("conversation_id", a.ConversationID).
		Str("channel", a.Channel).
		Str("urgency", a.Urgency).
		Str("service_tag", a.ServiceTag).
		Str("rule_id", a.RuleID).
		Str("reason", a.Reason).
		Msg("handover requested")
	return nil
}
