package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const natsStream = "SUPPORT_ESCALATIONS"

// jsPublisher is the part of jetstream.JetStream used here.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATS publishes alerts as JSON to a JetStream subject so downstream
// consumers (ticketing, paging) can pick them up.
type NATS struct {
	js      jsPublisher
	subject string
	close   func()
}

// ConnectNATS connects to url and ensures a stream captures subject.
func ConnectNATS(ctx context.Context, url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("support-router"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     natsStream,
		Subjects: []string{subject},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}
	log.Info().Str("url", url).Str("stream", natsStream).Str("subject", subject).Msg("nats connected")
	return &NATS{js: js, subject: subject, close: nc.Close}, nil
}

func (n *NATS) Name() string { return "nats" }

// Notify implements Notifier.
func (n *NATS) Notify(ctx context.Context, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("nats marshal: %w", err)
	}
	if _, err := n.js.Publish(ctx, n.subject, data, jetstream.WithMsgID(alertMsgID(a))); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

// Close shuts down the connection.
func (n *NATS) Close() {
	if n.close != nil {
		n.close()
	}
}

// alertMsgID lets JetStream de-duplicate a re-sent alert.
func alertMsgID(a Alert) string {
	return fmt.Sprintf("%s-%d", a.ConversationID, a.CreatedAt.UnixNano())
}
