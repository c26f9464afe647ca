// Package domain defines the persistence models for conversations, messages,
// handovers, and feedback. These types are mapped with GORM and form the core
// data layer of the support router.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Conversation statuses.
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Handover modes stored on a conversation.
const (
	ModeAuto        = "auto"
	ModeAISuggested = "ai_suggested"
	ModeManual      = "manual"
)

// Message sender types.
const (
	SenderCustomer = "customer"
	SenderBot      = "bot"
	SenderAgent    = "agent"
)

// Handover record statuses.
const (
	HandoverActive   = "active"
	HandoverReleased = "released"
)

// ContactInfo carries lead details captured from the contact form.
type ContactInfo struct {
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Company      string `json:"company,omitempty"`
	TargetMarket string `json:"target_market,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Reachable reports whether a consultant has a way to follow up.
func (c ContactInfo) Reachable() bool {
	return strings.TrimSpace(c.Email) != "" || strings.TrimSpace(c.Phone) != ""
}

// ConversationMeta is the JSON document stored in Conversation.Metadata. It is
// stamped with the tags of the most recent routing decision.
type ConversationMeta struct {
	ServiceTag       string       `json:"service_tag,omitempty"`
	EscalationReason string       `json:"escalation_reason,omitempty"`
	ReasonCategory   string       `json:"reason_category,omitempty"`
	Urgency          string       `json:"urgency,omitempty"`
	RuleID           string       `json:"rule_id,omitempty"`
	AskContact       bool         `json:"ask_contact,omitempty"`
	Contact          *ContactInfo `json:"contact,omitempty"`
}

// Conversation is one ongoing dialogue with one customer on one channel.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - CustomerID / Channel: the owning pair; indexed for lookups.
//   - Status: "active" or "closed".
//   - HandoverMode: "auto", "ai_suggested" or "manual".
//   - ActiveKey: "<channel>:<customer_id>" while active, NULL once closed.
//     The unique index on it allows at most one active row per pair.
//   - LastMessage: text of the latest utterance, for list views.
//   - Metadata: routing tags and captured contact details.
type Conversation struct {
	ID           string                                `json:"id"            gorm:"type:char(36);primaryKey"`
	CustomerID   string                                `json:"customer_id"   gorm:"type:varchar(128);not null;index:idx_customer_channel,priority:1"`
	CustomerName string                                `json:"customer_name" gorm:"type:varchar(255)"`
	Channel      string                                `json:"channel"       gorm:"type:varchar(32);not null;index:idx_customer_channel,priority:2"`
	Status       string                                `json:"status"        gorm:"type:varchar(16);not null;default:'active';index;check:status IN ('active','closed')"`
	HandoverMode string                                `json:"handover_mode" gorm:"type:varchar(16);not null;default:'auto';check:handover_mode IN ('auto','ai_suggested','manual')"`
	ActiveKey    *string                               `json:"-"             gorm:"type:varchar(200);uniqueIndex:ux_conversation_active"`
	LastMessage  string                                `json:"last_message"  gorm:"type:text"`
	Metadata     datatypes.JSONType[ConversationMeta] `json:"metadata"`
	CreatedAt    time.Time                             `json:"created_at"`
	UpdatedAt    time.Time                             `json:"updated_at"    gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single utterance within a conversation. Messages are
// immutable once created; ordering by (created_at, id) defines the transcript.
type Message struct {
	ID             string                      `json:"id"                      gorm:"type:char(36);primaryKey"`
	ConversationID string                      `json:"conversation_id"         gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	SenderType     string                      `json:"sender_type"             gorm:"type:varchar(16);not null;check:sender_type IN ('customer','bot','agent')"`
	SenderName     string                      `json:"sender_name,omitempty"   gorm:"type:varchar(128)"`
	Text           string                      `json:"text"                    gorm:"type:text;not null"`
	AIModel        string                      `json:"ai_model,omitempty"      gorm:"type:varchar(64)"`
	AIConfidence   *float64                    `json:"ai_confidence,omitempty"`
	SourcesUsed    datatypes.JSONSlice[string] `json:"sources_used,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"              gorm:"index:idx_conversation_msgs,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// HandoverRecord records a transfer of control from automation to a human.
// ActiveKey holds the conversation id while the record is active and is
// cleared on release; its unique index keeps 0 or 1 active records per
// conversation.
type HandoverRecord struct {
	ID             string     `json:"id"                   gorm:"type:char(36);primaryKey"`
	ConversationID string     `json:"conversation_id"      gorm:"type:char(36);not null;index"`
	FromType       string     `json:"from_type"            gorm:"type:varchar(16);not null"`
	ToType         string     `json:"to_type"              gorm:"type:varchar(16);not null"`
	AgentName      string     `json:"agent_name,omitempty" gorm:"type:varchar(128)"`
	Reason         string     `json:"reason"               gorm:"type:text"`
	Status         string     `json:"status"               gorm:"type:varchar(16);not null;check:status IN ('active','released')"`
	ActiveKey      *string    `json:"-"                    gorm:"type:char(36);uniqueIndex:ux_handover_active"`
	CreatedAt      time.Time  `json:"created_at"`
	ReleasedAt     *time.Time `json:"released_at,omitempty"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for HandoverRecord.
func (HandoverRecord) TableName() string { return "handover_records" }

// Feedback is a customer rating on a bot message. A customer can leave one
// feedback entry per message (enforced by unique index).
type Feedback struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	MessageID  string    `json:"message_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_message_customer"`
	CustomerID string    `json:"customer_id" gorm:"type:varchar(128);not null;index;uniqueIndex:ux_feedback_message_customer"`
	Value      int       `json:"value"       gorm:"not null;check:value IN (-1,1)"`
	CreatedAt  time.Time `json:"created_at"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }
