package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryCounter keeps window counters in an in-process ristretto cache with
// a TTL of one window. Suitable for a single replica.
type MemoryCounter struct {
	cache *ristretto.Cache[string, *atomic.Int64]
	mu    sync.Mutex // serialises window creation
	now   func() time.Time
}

// NewMemoryCounter sizes the cache for roughly maxKeys live windows.
func NewMemoryCounter(maxKeys int64) (*MemoryCounter, error) {
	if maxKeys <= 0 {
		maxKeys = 100_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *atomic.Int64]{
		NumCounters:        maxKeys * 10,
		MaxCost:            maxKeys,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: create cache: %w", err)
	}
	return &MemoryCounter{cache: c, now: time.Now}, nil
}

// Incr implements Counter. When the cache refuses a new window (admission
// under pressure) the hit counts as the first of its window.
func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := m.now()
	bucket := bucketKey(key, now, window)
	if n, ok := m.cache.Get(bucket); ok {
		return n.Add(1), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.cache.Get(bucket); ok {
		return n.Add(1), nil
	}
	n := new(atomic.Int64)
	n.Store(1)
	if m.cache.SetWithTTL(bucket, n, 1, WindowEnd(now, window).Sub(now)) {
		m.cache.Wait()
	}
	return 1, nil
}

// Close releases the cache.
func (m *MemoryCounter) Close() { m.cache.Close() }
