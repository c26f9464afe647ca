// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Feedback model.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules to the services package.
//
// Error semantics:
//   - Duplicate feedback (same message_id, customer_id) relies on the database
//     unique constraint and is returned as ErrDuplicate. The service layer
//     translates that into a domain error (ErrDuplicateFeedback).
//   - On other DB errors (connectivity, constraints, etc.), the raw gorm
//     error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/domain"
)

// CreateFeedback inserts a feedback row for the given message and customer.
//
// Value must be -1 (negative) or 1 (positive). Validation is enforced by the
// service layer and by a CHECK constraint.
func CreateFeedback(ctx context.Context, db *gorm.DB, messageID, customerID string, value int) error {
	fb := &domain.Feedback{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		CustomerID: customerID,
		Value:      value,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
