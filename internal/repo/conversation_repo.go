// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// At most one active conversation exists per (channel, customer_id). The
// invariant is carried by the unique ActiveKey column: FindOrCreateConversation
// inserts with ON CONFLICT DO NOTHING and falls back to a read of the winner,
// so concurrent first turns from the same customer converge on one row.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/support-router/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// findOrCreateAttempts bounds the insert/read loop. A miss on both sides only
// happens when the active row is closed between our insert and our read.
const findOrCreateAttempts = 3

// ActiveConversationKey returns the value stored in Conversation.ActiveKey
// while a conversation is active.
func ActiveConversationKey(channel, customerID string) string {
	return channel + ":" + customerID
}

// ConversationFilter narrows ListConversations.
type ConversationFilter struct {
	Status       string
	Channel      string
	HandoverMode string
	CustomerID   string
}

func (f ConversationFilter) apply(q *gorm.DB) *gorm.DB {
	if s := strings.TrimSpace(f.Status); s != "" {
		q = q.Where("status = ?", s)
	}
	if s := strings.TrimSpace(f.Channel); s != "" {
		q = q.Where("channel = ?", s)
	}
	if s := strings.TrimSpace(f.HandoverMode); s != "" {
		q = q.Where("handover_mode = ?", s)
	}
	if s := strings.TrimSpace(f.CustomerID); s != "" {
		q = q.Where("customer_id = ?", s)
	}
	return q
}

// FindOrCreateConversation returns the active conversation for
// (customerID, channel), creating it if none exists. created reports whether
// this call inserted the row.
func FindOrCreateConversation(ctx context.Context, db *gorm.DB, customerID, customerName, channel string) (*domain.Conversation, bool, error) {
	key := ActiveConversationKey(channel, customerID)
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		now := time.Now().UTC()
		c := &domain.Conversation{
			ID:           uuid.NewString(),
			CustomerID:   customerID,
			CustomerName: customerName,
			Channel:      channel,
			Status:       domain.ConversationActive,
			HandoverMode: domain.ModeAuto,
			ActiveKey:    &key,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		res := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "active_key"}}, DoNothing: true}).
			Create(c)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected == 1 {
			return c, true, nil
		}

		existing, err := GetActiveConversation(ctx, db, customerID, channel)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("repo: find or create conversation %s: contention not resolved", key)
}

// GetActiveConversation returns the active conversation for the pair, or ErrNotFound.
func GetActiveConversation(ctx context.Context, db *gorm.DB, customerID, channel string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("active_key = ?", ActiveConversationKey(channel, customerID)).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns one page of conversations ordered by most recent
// activity, together with the unfiltered-by-page total.
func ListConversations(ctx context.Context, db *gorm.DB, f ConversationFilter, offset, limit int) ([]domain.Conversation, int64, error) {
	var total int64
	if err := f.apply(db.WithContext(ctx).Model(&domain.Conversation{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Conversation
	err := f.apply(db.WithContext(ctx)).Order("updated_at DESC, id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// TouchConversation records the latest utterance text and bumps updated_at.
func TouchConversation(ctx context.Context, db *gorm.DB, id, lastMessage string) error {
	return updateConversation(ctx, db, id, map[string]any{
		"last_message": lastMessage,
		"updated_at":   time.Now().UTC(),
	})
}

// SetHandoverMode updates the conversation's handover mode.
func SetHandoverMode(ctx context.Context, db *gorm.DB, id, mode string) error {
	return updateConversation(ctx, db, id, map[string]any{
		"handover_mode": mode,
		"updated_at":    time.Now().UTC(),
	})
}

// SetConversationMeta replaces the metadata document.
func SetConversationMeta(ctx context.Context, db *gorm.DB, id string, meta domain.ConversationMeta) error {
	return updateConversation(ctx, db, id, map[string]any{
		"metadata":   datatypes.NewJSONType(meta),
		"updated_at": time.Now().UTC(),
	})
}

// CloseConversation marks the conversation closed and frees its active key so
// the next turn from the same customer opens a fresh conversation.
// Closing an already-closed conversation is a no-op.
func CloseConversation(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.ConversationClosed,
			"active_key": gorm.Expr("NULL"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversationRow removes the conversation row itself. Dependent rows
// are removed by DeleteConversation in a fixed order before this runs.
func DeleteConversationRow(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Conversation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func updateConversation(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
