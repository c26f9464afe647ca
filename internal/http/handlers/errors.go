package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, so
// existing values must not change.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
)

// Conversation and history.
const (
	ErrCodeMessageTooLong     = "message_too_long"
	ErrCodeInvalidCursor      = "invalid_cursor"
	ErrCodeConversationClosed = "conversation_closed"
	ErrCodeTurnFailed         = "turn_failed"
	ErrCodeListFailed         = "list_failed"
	ErrCodeDeleteFailed       = "delete_failed"
)

// Channel ingress.
const (
	ErrCodeChannelUnavailable  = "channel_unavailable"
	ErrCodeBadSignature        = "bad_signature"
	ErrCodeUnknownChannel      = "unknown_channel"
	ErrCodeWebsocketNotAllowed = "websocket_required"
)
