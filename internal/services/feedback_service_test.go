package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/observability"
	"github.com/tbourn/support-router/internal/repo"
)

// newTestDB opens a migrated SQLite file under t.TempDir().
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := repo.SQLiteDSN(filepath.Join(t.TempDir(), "svc.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// seedConversation creates an active conversation owned by customerID.
func seedConversation(t *testing.T, db *gorm.DB, customerID, channel string) *domain.Conversation {
	t.Helper()
	c, _, err := repo.FindOrCreateConversation(context.Background(), db, customerID, "Ann", channel)
	require.NoError(t, err)
	return c
}

func seedMessage(t *testing.T, db *gorm.DB, convID, sender, text string) *domain.Message {
	t.Helper()
	m, err := repo.CreateMessage(context.Background(), db, repo.NewMessage{
		ConversationID: convID,
		SenderType:     sender,
		Text:           text,
	})
	require.NoError(t, err)
	return m
}

func TestFeedback_Leave_Rejections(t *testing.T) {
	db := newTestDB(t)
	conv := seedConversation(t, db, "owner", "web")
	bot := seedMessage(t, db, conv.ID, domain.SenderBot, "answer")
	customer := seedMessage(t, db, conv.ID, domain.SenderCustomer, "question")
	agent := seedMessage(t, db, conv.ID, domain.SenderAgent, "hello from a human")
	svc := &FeedbackService{DB: db}

	tests := map[string]struct {
		customerID, messageID string
		value                 int
		want                  error
	}{
		"zero value":      {"owner", bot.ID, 0, ErrInvalidFeedback},
		"blank customer":  {"  ", bot.ID, 1, ErrMissingCustomer},
		"unknown message": {"owner", "missing", 1, ErrMessageNotFound},
		"not the owner":   {"stranger", bot.ID, 1, ErrForbiddenFeedback},
		"customer reply":  {"owner", customer.ID, -1, ErrForbiddenFeedback},
		"agent reply":     {"owner", agent.ID, -1, ErrForbiddenFeedback},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := svc.Leave(context.Background(), tc.customerID, tc.messageID, tc.value)
			require.ErrorIs(t, err, tc.want)
		})
	}

	var n int64
	require.NoError(t, db.Model(&domain.Feedback{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestFeedback_Leave_StoresOncePerCustomer(t *testing.T) {
	db := newTestDB(t)
	conv := seedConversation(t, db, "u9", "line")
	msg := seedMessage(t, db, conv.ID, domain.SenderBot, "ok")
	svc := &FeedbackService{DB: db}

	down := observability.FeedbackTotal.WithLabelValues("down")
	before := testutil.ToFloat64(down)

	require.NoError(t, svc.Leave(context.Background(), " u9 ", msg.ID, -1))
	require.ErrorIs(t, svc.Leave(context.Background(), "u9", msg.ID, 1), ErrDuplicateFeedback)
	require.Equal(t, before+1, testutil.ToFloat64(down))

	var got domain.Feedback
	require.NoError(t, db.Where("message_id = ? AND customer_id = ?", msg.ID, "u9").First(&got).Error)
	require.Equal(t, -1, got.Value)
	require.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestFeedback_Leave_PassesThroughDBErrors(t *testing.T) {
	db := newTestDB(t)
	conv := seedConversation(t, db, "u1", "web")
	msg := seedMessage(t, db, conv.ID, domain.SenderBot, "answer")
	require.NoError(t, db.Migrator().DropTable(&domain.Feedback{}))

	err := (&FeedbackService{DB: db}).Leave(context.Background(), "u1", msg.ID, 1)
	require.Error(t, err)
	for _, sentinel := range []error{ErrDuplicateFeedback, ErrForbiddenFeedback, ErrMessageNotFound} {
		require.NotErrorIs(t, err, sentinel)
	}
}

func TestIsNotFound(t *testing.T) {
	require.True(t, isNotFound(repo.ErrNotFound))
	require.True(t, isNotFound(fmt.Errorf("wrapped: %w", gorm.ErrRecordNotFound)))
	require.False(t, isNotFound(nil))
	require.False(t, isNotFound(context.Canceled))
}
