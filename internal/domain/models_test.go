package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Enforce FKs on every pooled connection so cascades actually execute.
	dsn := fmt.Sprintf("file:domain_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Conversation{}, &Message{}, &HandoverRecord{}, &Feedback{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func strptr(s string) *string { return &s }

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Conversation{}).TableName():   "conversations",
		(Message{}).TableName():        "messages",
		(HandoverRecord{}).TableName(): "handover_records",
		(Feedback{}).TableName():       "feedback",
		(Idempotency{}).TableName():    "idempotency",
		(RateCounter{}).TableName():    "rate_counters",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	for _, idx := range []struct {
		model any
		name  string
	}{
		{&Conversation{}, "idx_customer_channel"},
		{&Conversation{}, "ux_conversation_active"},
		{&Message{}, "idx_conversation_msgs"},
		{&HandoverRecord{}, "ux_handover_active"},
		{&Feedback{}, "ux_feedback_message_customer"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}
}

func TestConversation_ActiveKeyUniqueness(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	a := &Conversation{ID: "c1", CustomerID: "u1", Channel: "web", Status: ConversationActive, HandoverMode: ModeAuto, ActiveKey: strptr("web:u1"), CreatedAt: now, UpdatedAt: now}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("insert c1: %v", err)
	}
	dup := &Conversation{ID: "c2", CustomerID: "u1", Channel: "web", Status: ConversationActive, HandoverMode: ModeAuto, ActiveKey: strptr("web:u1"), CreatedAt: now, UpdatedAt: now}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation for second active conversation")
	}

	// Closed conversations carry NULL and never collide.
	for _, id := range []string{"c3", "c4"} {
		closed := &Conversation{ID: id, CustomerID: "u1", Channel: "web", Status: ConversationClosed, HandoverMode: ModeAuto, CreatedAt: now, UpdatedAt: now}
		if err := db.Create(closed).Error; err != nil {
			t.Fatalf("insert closed %s: %v", id, err)
		}
	}
}

func TestConversation_MetadataRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	meta := ConversationMeta{ServiceTag: "food", Urgency: "high", RuleID: "attachment.present", Contact: &ContactInfo{Email: "a@b.co"}}
	c := &Conversation{ID: "c1", CustomerID: "u1", Channel: "line", Status: ConversationActive, HandoverMode: ModeAuto, Metadata: datatypes.NewJSONType(meta), CreatedAt: now, UpdatedAt: now}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	var got Conversation
	if err := db.First(&got, "id = ?", "c1").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	d := got.Metadata.Data()
	if d.ServiceTag != "food" || d.Urgency != "high" || d.RuleID != "attachment.present" || d.Contact == nil || d.Contact.Email != "a@b.co" {
		t.Fatalf("metadata mismatch: %+v", d)
	}
}

func TestCascades(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	if err := db.Create(&Conversation{ID: "c1", CustomerID: "u1", Channel: "web", Status: ConversationActive, HandoverMode: ModeAuto, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	conf := 0.8
	msgs := []*Message{
		{ID: "m1", ConversationID: "c1", SenderType: SenderCustomer, Text: "hello", CreatedAt: now},
		{ID: "m2", ConversationID: "c1", SenderType: SenderBot, Text: "hi", AIConfidence: &conf, SourcesUsed: datatypes.JSONSlice[string]{"Pricing"}, CreatedAt: now.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("insert %s: %v", m.ID, err)
		}
	}
	if err := db.Create(&Feedback{ID: "f1", MessageID: "m2", CustomerID: "u1", Value: 1, CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert feedback: %v", err)
	}
	if err := db.Create(&HandoverRecord{ID: "h1", ConversationID: "c1", FromType: SenderBot, ToType: SenderAgent, Status: HandoverActive, ActiveKey: strptr("c1"), CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert handover: %v", err)
	}

	// A sender type outside the allowed set is rejected by the check constraint.
	if err := db.Create(&Message{ID: "m3", ConversationID: "c1", SenderType: "robot", Text: "x", CreatedAt: now}).Error; err == nil {
		t.Fatalf("expected check constraint failure for sender_type")
	}

	if err := db.Delete(&Conversation{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	for _, model := range []any{&Message{}, &HandoverRecord{}, &Feedback{}} {
		var n int64
		if err := db.Model(model).Count(&n).Error; err != nil {
			t.Fatalf("count %T: %v", model, err)
		}
		if n != 0 {
			t.Fatalf("expected %T to cascade-delete, got %d rows", model, n)
		}
	}
}

func TestContactInfo_Reachable(t *testing.T) {
	cases := []struct {
		in   ContactInfo
		want bool
	}{
		{ContactInfo{}, false},
		{ContactInfo{Name: "Ann", Company: "Acme"}, false},
		{ContactInfo{Email: "  "}, false},
		{ContactInfo{Email: "ann@example.com"}, true},
		{ContactInfo{Phone: "+49 30 1234"}, true},
	}
	for _, c := range cases {
		if got := c.in.Reachable(); got != c.want {
			t.Errorf("%+v: Reachable = %v, want %v", c.in, got, c.want)
		}
	}
}
