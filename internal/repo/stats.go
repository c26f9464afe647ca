package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/domain"
)

// MessagesStats returns how many messages a conversation holds and the newest
// CreatedAt. Messages are append-only, so the pair changes exactly when the
// transcript does. latest is nil for an empty conversation.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (int64, *time.Time, error) {
	return countAndLatest("created_at", func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)
	})
}

// ConversationsStats returns the number of conversations matching f and
// their newest UpdatedAt.
func ConversationsStats(ctx context.Context, db *gorm.DB, f ConversationFilter) (int64, *time.Time, error) {
	return countAndLatest("updated_at", func() *gorm.DB {
		return f.apply(db.WithContext(ctx).Model(&domain.Conversation{}))
	})
}

// countAndLatest plucks column from the newest row rather than selecting
// MAX(column), which SQLite reports as TEXT.
func countAndLatest(column string, scope func() *gorm.DB) (int64, *time.Time, error) {
	var n int64
	if err := scope().Count(&n).Error; err != nil || n == 0 {
		return 0, nil, err
	}
	var ts []time.Time
	if err := scope().Order(column+" DESC").Limit(1).Pluck(column, &ts).Error; err != nil {
		return 0, nil, err
	}
	if len(ts) == 0 {
		return n, nil, nil
	}
	return n, &ts[0], nil
}
