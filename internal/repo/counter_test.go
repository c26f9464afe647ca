package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/support-router/internal/domain"
)

func TestIncrementCounter_Counts(t *testing.T) {
	db := newRepoDB(t, &domain.RateCounter{})
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	for want := int64(1); want <= 3; want++ {
		got, err := IncrementCounter(ctx, db, "k:1", exp)
		if err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
		if got != want {
			t.Fatalf("hit %d: got %d", want, got)
		}
	}
	if got, _ := IncrementCounter(ctx, db, "k:2", exp); got != 1 {
		t.Fatalf("separate key should start at 1, got %d", got)
	}
}

func TestIncrementCounter_ConcurrentNoLostUpdates(t *testing.T) {
	db := newRepoDB(t, &domain.RateCounter{})
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := IncrementCounter(ctx, db, "shared", exp); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("increment: %v", err)
	}

	var row domain.RateCounter
	if err := db.First(&row, "key = ?", "shared").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.Hits != n {
		t.Fatalf("expected %d hits, got %d", n, row.Hits)
	}
}

func TestPurgeExpiredCounters(t *testing.T) {
	db := newRepoDB(t, &domain.RateCounter{})
	ctx := context.Background()
	now := time.Now()

	_, _ = IncrementCounter(ctx, db, "old", now.Add(-time.Second))
	_, _ = IncrementCounter(ctx, db, "new", now.Add(time.Minute))

	n, err := PurgeExpiredCounters(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpiredCounters: n=%d err=%v", n, err)
	}
}
