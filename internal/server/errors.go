package server

import "errors"

var (
	ErrInvalidFormat   = errors.New("invalid message format")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrHubClosed       = errors.New("hub is closed")
	ErrSessionInactive = errors.New("session is not active")
)

// clientMessage maps a handler failure to the text sent in an error event.
// Anything that is not a known rejection is reported generically.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded. Please slow down."
	case errors.Is(err, ErrInvalidFormat):
		return "Invalid message format"
	case errors.Is(err, ErrEmptyMessage):
		return "Message cannot be empty"
	default:
		return "Failed to process message"
	}
}
