package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/support-router/internal/domain"
)

func TestFindOrCreateConversation_CreatesThenReuses(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()

	c1, created, err := FindOrCreateConversation(ctx, db, "u1", "Ann", "web")
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	if c1.Status != domain.ConversationActive || c1.HandoverMode != domain.ModeAuto {
		t.Fatalf("unexpected defaults: %+v", c1)
	}

	c2, created, err := FindOrCreateConversation(ctx, db, "u1", "Ann", "web")
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("expected same conversation, got %s and %s", c1.ID, c2.ID)
	}

	// Same customer on another channel is a separate conversation.
	c3, created, err := FindOrCreateConversation(ctx, db, "u1", "Ann", "line")
	if err != nil || !created || c3.ID == c1.ID {
		t.Fatalf("expected new conversation on line: %+v created=%v err=%v", c3, created, err)
	}
}

func TestFindOrCreateConversation_ConcurrentConverges(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := FindOrCreateConversation(ctx, db, "u1", "", "web")
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("goroutines saw different conversations: %v", ids)
		}
	}
	var count int64
	db.Model(&domain.Conversation{}).Where("customer_id = ? AND channel = ?", "u1", "web").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
}

func TestCloseConversation_FreesActiveKey(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()

	c1, _, err := FindOrCreateConversation(ctx, db, "u1", "", "web")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := CloseConversation(ctx, db, c1.ID); err != nil {
		t.Fatalf("CloseConversation: %v", err)
	}
	if _, err := GetActiveConversation(ctx, db, "u1", "web"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no active conversation, got %v", err)
	}

	c2, created, err := FindOrCreateConversation(ctx, db, "u1", "", "web")
	if err != nil || !created || c2.ID == c1.ID {
		t.Fatalf("expected fresh conversation after close: %+v created=%v err=%v", c2, created, err)
	}

	got, err := GetConversation(ctx, db, c1.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Status != domain.ConversationClosed || got.ActiveKey != nil {
		t.Fatalf("closed row not updated: %+v", got)
	}

	if err := CloseConversation(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConversationUpdates(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()

	c, _, _ := FindOrCreateConversation(ctx, db, "u1", "", "web")

	if err := TouchConversation(ctx, db, c.ID, "latest"); err != nil {
		t.Fatalf("TouchConversation: %v", err)
	}
	if err := SetHandoverMode(ctx, db, c.ID, domain.ModeManual); err != nil {
		t.Fatalf("SetHandoverMode: %v", err)
	}
	meta := domain.ConversationMeta{ServiceTag: "drug", Urgency: "high", AskContact: true}
	if err := SetConversationMeta(ctx, db, c.ID, meta); err != nil {
		t.Fatalf("SetConversationMeta: %v", err)
	}

	got, err := GetConversation(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.LastMessage != "latest" || got.HandoverMode != domain.ModeManual {
		t.Fatalf("unexpected row: %+v", got)
	}
	if d := got.Metadata.Data(); d.ServiceTag != "drug" || !d.AskContact {
		t.Fatalf("unexpected metadata: %+v", d)
	}

	if err := TouchConversation(ctx, db, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversations_FilterAndOrder(t *testing.T) {
	db := migrated(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := []domain.Conversation{
		{ID: "a", CustomerID: "u1", Channel: "web", Status: domain.ConversationActive, HandoverMode: domain.ModeAuto, UpdatedAt: base},
		{ID: "b", CustomerID: "u2", Channel: "line", Status: domain.ConversationActive, HandoverMode: domain.ModeManual, UpdatedAt: base.Add(time.Minute)},
		{ID: "c", CustomerID: "u3", Channel: "web", Status: domain.ConversationClosed, HandoverMode: domain.ModeAuto, UpdatedAt: base.Add(2 * time.Minute)},
	}
	for i := range rows {
		rows[i].CreatedAt = base
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", rows[i].ID, err)
		}
	}

	all, total, err := ListConversations(ctx, db, ConversationFilter{}, 0, 10)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if total != 3 || len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("unexpected list: total=%d %+v", total, all)
	}

	web, total, err := ListConversations(ctx, db, ConversationFilter{Channel: "web", Status: domain.ConversationActive}, 0, 10)
	if err != nil || total != 1 || len(web) != 1 || web[0].ID != "a" {
		t.Fatalf("unexpected filtered list: total=%d %+v err=%v", total, web, err)
	}

	page, total, err := ListConversations(ctx, db, ConversationFilter{}, 1, 1)
	if err != nil || total != 3 || len(page) != 1 || page[0].ID != "b" {
		t.Fatalf("unexpected page: total=%d %+v err=%v", total, page, err)
	}
}

func TestDeleteConversationRow_NotFound(t *testing.T) {
	db := migrated(t)
	if err := DeleteConversationRow(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
