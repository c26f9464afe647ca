// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for HandoverRecord.
//
// A conversation has at most one active handover. OpenHandover relies on the
// unique ActiveKey column (set to the conversation id while active) and
// ReleaseHandover clears it in the same UPDATE that flips the status, so the
// check and the write are a single atomic statement on every backend.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/support-router/internal/domain"
)

// NewHandover describes a handover to open.
type NewHandover struct {
	ConversationID string
	FromType       string
	ToType         string
	AgentName      string
	Reason         string
}

// OpenHandover creates an active handover record unless one is already
// active for the conversation. created is false when an existing active
// record is returned instead.
func OpenHandover(ctx context.Context, db *gorm.DB, in NewHandover) (*domain.HandoverRecord, bool, error) {
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		key := in.ConversationID
		h := &domain.HandoverRecord{
			ID:             uuid.NewString(),
			ConversationID: in.ConversationID,
			FromType:       in.FromType,
			ToType:         in.ToType,
			AgentName:      in.AgentName,
			Reason:         in.Reason,
			Status:         domain.HandoverActive,
			ActiveKey:      &key,
			CreatedAt:      time.Now().UTC(),
		}
		res := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "active_key"}}, DoNothing: true}).
			Create(h)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected == 1 {
			return h, true, nil
		}

		existing, err := GetActiveHandover(ctx, db, in.ConversationID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("repo: open handover %s: contention not resolved", in.ConversationID)
}

// GetActiveHandover returns the active handover of a conversation, or ErrNotFound.
func GetActiveHandover(ctx context.Context, db *gorm.DB, conversationID string) (*domain.HandoverRecord, error) {
	var h domain.HandoverRecord
	err := db.WithContext(ctx).
		Where("active_key = ?", conversationID).
		First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// HasActiveHandover reports whether a conversation currently has an active handover.
func HasActiveHandover(ctx context.Context, db *gorm.DB, conversationID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.HandoverRecord{}).
		Where("active_key = ?", conversationID).
		Count(&n).Error
	return n > 0, err
}

// ReleaseHandover marks the active handover released. released is false when
// there was nothing to release.
func ReleaseHandover(ctx context.Context, db *gorm.DB, conversationID string) (bool, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.HandoverRecord{}).
		Where("conversation_id = ? AND status = ?", conversationID, domain.HandoverActive).
		Updates(map[string]any{
			"status":      domain.HandoverReleased,
			"released_at": now,
			"active_key":  gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListHandovers returns every handover of a conversation, oldest first.
func ListHandovers(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.HandoverRecord, error) {
	var out []domain.HandoverRecord
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteHandovers removes every handover record of a conversation.
func DeleteHandovers(ctx context.Context, db *gorm.DB, conversationID string) error {
	return db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&domain.HandoverRecord{}).Error
}
