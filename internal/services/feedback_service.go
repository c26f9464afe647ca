package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/observability"
	"github.com/tbourn/support-router/internal/repo"
)

// FeedbackService stores customer ratings of bot replies.
type FeedbackService struct {
	DB *gorm.DB
}

// Leave stores value (-1 or 1) for messageID on behalf of customerID. Only
// bot messages in the customer's own conversations can be rated, once each.
// Lookups and the insert share one transaction.
func (s *FeedbackService) Leave(ctx context.Context, customerID, messageID string, value int) error {
	if value != -1 && value != 1 {
		return ErrInvalidFeedback
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return ErrMissingCustomer
	}

	ctx, span := observability.Tracer("services/FeedbackService").Start(ctx, "Leave",
		trace.WithAttributes(
			attribute.String("message_id", messageID),
			attribute.Int("value", value),
		),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rateable(ctx, tx, customerID, messageID); err != nil {
			return err
		}
		err := repo.CreateFeedback(ctx, tx, messageID, customerID, value)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrDuplicateFeedback
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	rating := "up"
	if value < 0 {
		rating = "down"
	}
	observability.FeedbackTotal.WithLabelValues(rating).Inc()
	return nil
}

// rateable checks that messageID is a bot reply in a conversation owned by
// customerID.
func rateable(ctx context.Context, tx *gorm.DB, customerID, messageID string) error {
	msg, err := repo.GetMessage(ctx, tx, messageID)
	switch {
	case isNotFound(err):
		return ErrMessageNotFound
	case err != nil:
		return err
	case msg.SenderType != domain.SenderBot:
		return ErrForbiddenFeedback
	}

	conv, err := repo.GetConversation(ctx, tx, msg.ConversationID)
	switch {
	case isNotFound(err):
		return ErrForbiddenFeedback
	case err != nil:
		return err
	case conv.CustomerID != customerID:
		return ErrForbiddenFeedback
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
