package generator

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/support-router/internal/resilience"
)

// ErrTimeout is returned when the wrapped generator does not answer in time.
var ErrTimeout = errors.New("generator: timed out")

// Guarded bounds a generator with a timeout and a circuit breaker. A backend
// that ignores context cancellation is abandoned once the timeout fires; its
// late answer is discarded.
type Guarded struct {
	Next    Generator
	Timeout time.Duration
	Breaker *resilience.Breaker
}

// NewGuarded wraps next. A nil breaker disables circuit breaking.
func NewGuarded(next Generator, timeout time.Duration, breaker *resilience.Breaker) *Guarded {
	return &Guarded{Next: next, Timeout: timeout, Breaker: breaker}
}

type outcome struct {
	res Result
	err error
}

// Generate implements Generator.
func (g *Guarded) Generate(ctx context.Context, req Request) (Result, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	var res Result
	call := func(ctx context.Context) error {
		done := make(chan outcome, 1)
		go func() {
			r, err := g.Next.Generate(ctx, req)
			done <- outcome{r, err}
		}()
		select {
		case o := <-done:
			res = o.res
			return o.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ctx.Err()
		}
	}

	var err error
	if g.Breaker != nil {
		err = g.Breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return Result{}, err
	}
	res.Confidence = clamp01(res.Confidence)
	return res, nil
}
