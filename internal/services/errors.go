// Package services defines the business logic for conversations, turns,
// handovers and feedback. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed by the handlers.
package services

import "errors"

// Turn validation errors.
var (
	// ErrEmptyMessage is returned when a turn carries neither text nor an
	// attachment.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMissingCustomer is returned when a turn has no customer identifier.
	ErrMissingCustomer = errors.New("customer_id is required")

	// ErrMessageTooLong is returned when a turn exceeds the configured
	// maximum text length.
	ErrMessageTooLong = errors.New("message too long")
)

// Conversation errors.
var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationClosed is returned for operator actions on a closed
	// conversation.
	ErrConversationClosed = errors.New("conversation is closed")

	// ErrInvalidCursor is returned when a history cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrChannelUnavailable is returned when the conversation's channel has no
	// adapter able to deliver an agent reply.
	ErrChannelUnavailable = errors.New("channel unavailable")
)

// Feedback errors.
var (
	// ErrInvalidFeedback is returned when a feedback value is outside the
	// allowed set (currently -1 or 1).
	ErrInvalidFeedback = errors.New("feedback value must be -1 or 1")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrForbiddenFeedback is returned when a customer attempts to rate a
	// message they are not permitted to rate.
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this message")

	// ErrDuplicateFeedback is returned when a customer attempts to rate a
	// message that they have already rated.
	ErrDuplicateFeedback = errors.New("feedback already exists")
)
