package chat

import "errors"

// Failure taxonomy for the message pipeline and registry operations.
// Transport layers map these onto error events or HTTP status codes;
// the short texts double as the user-visible error payload.
var (
	ErrUnauthenticated      = errors.New("user not authenticated")
	ErrInvalidParticipants  = errors.New("cannot start a conversation with yourself")
	ErrSenderNotFound       = errors.New("sender not found")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrConversationNotFound = errors.New("conversation not found")
)
