// Package services – ConversationService
//
// ConversationService covers everything around a conversation other than the
// turn itself: history paging, the operator dashboard listing, contact
// capture, agent replies, closing and deleting.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/observability"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/utils"
)

// History page sizes.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Conversation listing page sizes.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Sender delivers outbound text through a channel. *channels.Registry
// implements it.
type Sender interface {
	Send(ctx context.Context, channel, customerID, text string) error
}

// ConversationService manages conversations outside of turn processing.
type ConversationService struct {
	DB *gorm.DB
	// Channels delivers agent replies; nil means replies cannot be sent.
	Channels Sender
	// Locks is shared with RouterService.
	Locks *KeyedMutex
	// MaxTextRunes caps agent reply length.
	MaxTextRunes int
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	Status       string
	Channel      string
	HandoverMode string
	CustomerID   string
}

// Get returns a conversation by id.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	return getConversation(ctx, s.DB, id)
}

// List returns one page of conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, f ListFilter, page, pageSize int) ([]domain.Conversation, int64, error) {
	tr := observability.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	pg := utils.NewPage(page, pageSize, DefaultPageSize, MaxPageSize)
	return repo.ListConversations(ctx, s.DB, repo.ConversationFilter{
		Status:       f.Status,
		Channel:      f.Channel,
		HandoverMode: f.HandoverMode,
		CustomerID:   f.CustomerID,
	}, pg.Offset(), pg.Size)
}

// History pages backwards through a conversation's messages. An empty cursor
// starts from the newest message; each page is ordered oldest to newest.
func (s *ConversationService) History(ctx context.Context, conversationID, cursor string, limit int) (*repo.MessagePage, error) {
	tr := observability.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if _, err := getConversation(ctx, s.DB, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	page, err := repo.ListMessagesBefore(ctx, s.DB, conversationID, cursor, limit)
	if errors.Is(err, repo.ErrBadCursor) {
		return nil, ErrInvalidCursor
	}
	return page, err
}

// SubmitContact stores lead details on the conversation and clears the
// ask_contact flag. A non-empty customerID must own the conversation.
// Empty fields keep previously captured values.
func (s *ConversationService) SubmitContact(ctx context.Context, conversationID, customerID string, in domain.ContactInfo) (*domain.Conversation, error) {
	conv, unlock, err := lockConversation(ctx, s.DB, s.Locks, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if customerID = strings.TrimSpace(customerID); customerID != "" && customerID != conv.CustomerID {
		return nil, ErrConversationNotFound
	}

	meta := conv.Metadata.Data()
	contact := domain.ContactInfo{}
	if meta.Contact != nil {
		contact = *meta.Contact
	}
	contact.Name = keep(contact.Name, in.Name)
	contact.Email = keep(contact.Email, in.Email)
	contact.Phone = keep(contact.Phone, in.Phone)
	contact.Company = keep(contact.Company, in.Company)
	contact.TargetMarket = keep(contact.TargetMarket, in.TargetMarket)
	contact.Product = keep(contact.Product, in.Product)
	meta.Contact = &contact
	meta.AskContact = false

	if err := repo.SetConversationMeta(ctx, s.DB, conv.ID, meta); err != nil {
		return nil, err
	}
	if n := strings.TrimSpace(contact.Name); n != "" && conv.CustomerName == "" {
		if err := s.DB.WithContext(ctx).Model(&domain.Conversation{}).Where("id = ?", conv.ID).Update("customer_name", n).Error; err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("set customer name failed")
		}
	}
	log.Info().Str("conversation_id", conv.ID).Msg("contact details captured")
	return getConversation(ctx, s.DB, conv.ID)
}

// AgentReply persists an agent message and sends it to the customer through
// the conversation's channel. The reply implies a takeover, so automation
// stays quiet while the agent is talking. delivered is false when the
// channel send failed; the message is stored regardless.
func (s *ConversationService) AgentReply(ctx context.Context, conversationID, agentName, text string) (msg *domain.Message, delivered bool, err error) {
	tr := observability.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "AgentReply",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false, ErrEmptyMessage
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
		return nil, false, ErrMessageTooLong
	}
	if s.Channels == nil {
		return nil, false, ErrChannelUnavailable
	}
	conv, unlock, err := lockConversation(ctx, s.DB, s.Locks, conversationID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()
	if conv.Status != domain.ConversationActive {
		return nil, false, ErrConversationClosed
	}

	if _, _, err := takeover(ctx, s.DB, conv, agentName); err != nil {
		return nil, false, err
	}
	msg, err = repo.CreateMessage(ctx, s.DB, repo.NewMessage{
		ConversationID: conv.ID,
		SenderType:     domain.SenderAgent,
		SenderName:     strings.TrimSpace(agentName),
		Text:           text,
	})
	if err != nil {
		return nil, false, err
	}
	if err := repo.TouchConversation(ctx, s.DB, conv.ID, text); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("touch conversation failed")
	}

	if err := s.Channels.Send(ctx, conv.Channel, conv.CustomerID, text); err != nil {
		log.Warn().Err(err).
			Str("conversation_id", conv.ID).
			Str("channel", conv.Channel).
			Msg("agent reply not delivered")
		return msg, false, nil
	}
	return msg, true, nil
}

// Close releases any active handover and closes the conversation. The next
// inbound message from the customer opens a new conversation.
func (s *ConversationService) Close(ctx context.Context, conversationID string) error {
	conv, unlock, err := lockConversation(ctx, s.DB, s.Locks, conversationID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.ReleaseHandover(ctx, tx, conv.ID); err != nil {
			return err
		}
		if err := repo.SetHandoverMode(ctx, tx, conv.ID, domain.ModeAuto); err != nil {
			return err
		}
		return repo.CloseConversation(ctx, tx, conv.ID)
	})
}

// Delete removes a conversation: messages first, then handover records, then
// the conversation row. A message deletion failure aborts; a handover
// deletion failure is logged and the delete continues.
func (s *ConversationService) Delete(ctx context.Context, conversationID string) error {
	tr := observability.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conv, unlock, err := lockConversation(ctx, s.DB, s.Locks, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := repo.DeleteMessages(ctx, s.DB, conv.ID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := repo.DeleteHandovers(ctx, s.DB, conv.ID); err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("delete handover records failed; continuing")
	}
	if err := repo.DeleteConversationRow(ctx, s.DB, conv.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("delete conversation: %w", err)
	}
	log.Info().Str("conversation_id", conv.ID).Msg("conversation deleted")
	return nil
}

func keep(old, in string) string {
	if v := strings.TrimSpace(in); v != "" {
		return v
	}
	return old
}
