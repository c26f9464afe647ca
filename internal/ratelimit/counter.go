// Package ratelimit provides the fixed-window hit counters used to throttle
// turn submissions. Counters are injected into the HTTP layer so that a
// deployment can pick a process-local store or a shared SQL table.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter counts hits per key within fixed windows.
type Counter interface {
	// Incr records a hit for key in the window containing now and returns
	// the number of hits in that window so far.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// WindowStart returns the start of the fixed window containing t.
func WindowStart(t time.Time, window time.Duration) time.Time {
	if window <= 0 {
		return t
	}
	return t.Truncate(window)
}

// WindowEnd returns the end of the fixed window containing t.
func WindowEnd(t time.Time, window time.Duration) time.Time {
	return WindowStart(t, window).Add(window)
}

func bucketKey(key string, t time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%d", key, WindowStart(t, window).Unix())
}
