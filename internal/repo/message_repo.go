// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/domain"
)

// ErrBadCursor is returned when a history cursor cannot be decoded.
var ErrBadCursor = errors.New("invalid cursor")

// NewMessage describes a message to persist. Optional AI fields stay empty for
// customer and agent messages.
type NewMessage struct {
	ConversationID string
	SenderType     string
	SenderName     string
	Text           string
	AIModel        string
	AIConfidence   *float64
	Sources        []string
}

// MessagePage is one page of history in chronological order.
type MessagePage struct {
	Messages   []domain.Message
	NextCursor string
	HasMore    bool
}

// CreateMessage inserts a new message row.
func CreateMessage(ctx context.Context, db *gorm.DB, in NewMessage) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderType:     in.SenderType,
		SenderName:     in.SenderName,
		Text:           in.Text,
		AIModel:        in.AIModel,
		AIConfidence:   in.AIConfidence,
		CreatedAt:      time.Now().UTC(),
	}
	if len(in.Sources) > 0 {
		m.SourcesUsed = datatypes.JSONSlice[string](in.Sources)
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// RecentMessages returns up to limit of the latest messages of a
// conversation in chronological order (CreatedAt ASC, ID ASC).
func RecentMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// ListMessagesBefore pages backwards through a conversation. An empty cursor
// starts from the newest message. The page is returned oldest-first; when
// HasMore is set, NextCursor resumes strictly before the first message.
func ListMessagesBefore(ctx context.Context, db *gorm.DB, conversationID, cursor string, limit int) (*MessagePage, error) {
	q := db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if strings.TrimSpace(cursor) != "" {
		at, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, id)
	}

	var rows []domain.Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, err
	}

	page := &MessagePage{}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}
	reverse(rows)
	page.Messages = rows
	if page.HasMore && len(rows) > 0 {
		page.NextCursor = EncodeCursor(rows[0].CreatedAt, rows[0].ID)
	}
	return page, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&total).Error
	return total, err
}

// DeleteMessages removes every message of a conversation together with the
// feedback attached to those messages.
func DeleteMessages(ctx context.Context, db *gorm.DB, conversationID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&domain.Message{}).Select("id").Where("conversation_id = ?", conversationID)
		if err := tx.Where("message_id IN (?)", sub).Delete(&domain.Feedback{}).Error; err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", conversationID).Delete(&domain.Message{}).Error
	})
}

// EncodeCursor renders a (created_at, id) keyset position as an opaque token.
func EncodeCursor(at time.Time, id string) string {
	raw := at.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(cursor))
	if err != nil {
		return time.Time{}, "", ErrBadCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", ErrBadCursor
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", ErrBadCursor
	}
	return at, id, nil
}

func reverse(ms []domain.Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}
