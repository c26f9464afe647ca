package repo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tbourn/support-router/internal/domain"
)

func TestOpenHandover_AtMostOneActive(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()
	seedConversationRow(t, db, "c1")

	h1, created, err := OpenHandover(ctx, db, NewHandover{ConversationID: "c1", FromType: domain.SenderBot, ToType: domain.SenderAgent, Reason: "pricing"})
	if err != nil || !created {
		t.Fatalf("first open: created=%v err=%v", created, err)
	}
	h2, created, err := OpenHandover(ctx, db, NewHandover{ConversationID: "c1", FromType: domain.SenderBot, ToType: domain.SenderAgent, Reason: "again"})
	if err != nil || created {
		t.Fatalf("second open: created=%v err=%v", created, err)
	}
	if h2.ID != h1.ID || h2.Reason != "pricing" {
		t.Fatalf("expected the existing record, got %+v", h2)
	}

	active, err := HasActiveHandover(ctx, db, "c1")
	if err != nil || !active {
		t.Fatalf("HasActiveHandover: %v %v", active, err)
	}
}

func TestOpenHandover_Concurrent(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()
	seedConversationRow(t, db, "c1")

	const n = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := OpenHandover(ctx, db, NewHandover{ConversationID: "c1", FromType: domain.SenderBot, ToType: domain.SenderAgent})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if created != 1 {
		t.Fatalf("expected exactly one creator, got %d", created)
	}
}

func TestReleaseHandover_Idempotent(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()
	seedConversationRow(t, db, "c1")

	released, err := ReleaseHandover(ctx, db, "c1")
	if err != nil || released {
		t.Fatalf("release with nothing active: released=%v err=%v", released, err)
	}

	if _, _, err := OpenHandover(ctx, db, NewHandover{ConversationID: "c1", FromType: domain.SenderBot, ToType: domain.SenderAgent}); err != nil {
		t.Fatalf("open: %v", err)
	}
	released, err = ReleaseHandover(ctx, db, "c1")
	if err != nil || !released {
		t.Fatalf("release: released=%v err=%v", released, err)
	}
	if _, err := GetActiveHandover(ctx, db, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no active handover, got %v", err)
	}

	// A new handover may be opened after release; history keeps both.
	if _, created, err := OpenHandover(ctx, db, NewHandover{ConversationID: "c1", FromType: domain.SenderBot, ToType: domain.SenderAgent}); err != nil || !created {
		t.Fatalf("reopen: created=%v err=%v", created, err)
	}
	all, err := ListHandovers(ctx, db, "c1")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListHandovers: %d %v", len(all), err)
	}
	if all[0].Status != domain.HandoverReleased || all[0].ReleasedAt == nil || all[0].ActiveKey != nil {
		t.Fatalf("released record not updated: %+v", all[0])
	}
}

func TestDeleteHandovers(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()
	seedConversationRow(t, db, "c1")
	if _, _, err := OpenHandover(ctx, db, NewHandover{ConversationID: "c1", FromType: domain.SenderBot, ToType: domain.SenderAgent}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := DeleteHandovers(ctx, db, "c1"); err != nil {
		t.Fatalf("DeleteHandovers: %v", err)
	}
	if ok, _ := HasActiveHandover(ctx, db, "c1"); ok {
		t.Fatalf("expected no handovers after delete")
	}
}
