package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/support-router/internal/observability"
)

const defaultTimeout = 5 * time.Second

// Dispatcher fans an alert out to every configured notifier.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher returns a dispatcher. Nil notifiers are skipped; timeout <= 0
// selects five seconds.
func NewDispatcher(timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := &Dispatcher{timeout: timeout}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	return d
}

// Len reports the number of notifiers.
func (d *Dispatcher) Len() int { return len(d.notifiers) }

// Send delivers a to all notifiers concurrently and waits, bounded by the
// dispatcher timeout. Every failure is logged and counted; the first one is
// returned.
func (d *Dispatcher) Send(ctx context.Context, a Alert) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var g errgroup.Group
	for _, n := range d.notifiers {
		g.Go(func() error {
			err := deliver(ctx, n, a)
			if err != nil {
				observability.NotificationsTotal.WithLabelValues(n.Name(), "error").Inc()
				log.Warn().Err(err).
					Str("notifier", n.Name()).
					Str("conversation_id", a.ConversationID).
					Msg("escalation alert failed")
				return err
			}
			observability.NotificationsTotal.WithLabelValues(n.Name(), "ok").Inc()
			return nil
		})
	}
	return g.Wait()
}

// Fire sends a in the background and returns immediately. The caller's
// context is not used: the alert outlives the request that raised it.
// Alerts fired after Close are dropped.
func (d *Dispatcher) Fire(a Alert) {
	if len(d.notifiers) == 0 {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Warn().Str("conversation_id", a.ConversationID).Msg("dispatcher closed; alert dropped")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		_ = d.Send(context.Background(), a)
	}()
}

// deliver calls n, turning a panic into an error.
func deliver(ctx context.Context, n Notifier, a Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier %s panicked: %v", n.Name(), r)
		}
	}()
	return n.Notify(ctx, a)
}

// Close stops accepting alerts and waits for in-flight ones until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
