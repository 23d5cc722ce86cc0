package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxMessageLength = 1000
	anonymousName    = "Anonymous"
	typingFallback   = "Someone"
)

var markupEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

type chatPayload struct {
	Message  json.RawMessage `json:"message"`
	Username json.RawMessage `json:"username"`
}

// SanitizeText escapes angle brackets, trims surrounding whitespace and
// truncates the result to 1000 characters, in that order.
func SanitizeText(text string) string {
	cleaned := strings.TrimSpace(markupEscaper.Replace(text))
	if utf8.RuneCountInString(cleaned) > maxMessageLength {
		cleaned = string([]rune(cleaned)[:maxMessageLength])
	}
	return cleaned
}

// NewChatMessage validates an untrusted send-message payload and builds the
// message to broadcast. It returns ErrInvalidFormat when data is neither a
// JSON object nor an array and ErrEmptyMessage when the message field is
// missing, not a string or blank. Arrays carry no fields, so they always end
// up as ErrEmptyMessage.
func NewChatMessage(data json.RawMessage, senderID string, at time.Time) (ChatMessage, error) {
	switch jsonKind(data) {
	case '{':
	case '[':
		return ChatMessage{}, ErrEmptyMessage
	default:
		return ChatMessage{}, ErrInvalidFormat
	}

	var payload chatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	var text string
	if err := json.Unmarshal(payload.Message, &text); err != nil || strings.TrimSpace(text) == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	return ChatMessage{
		Message:   SanitizeText(text),
		Username:  stringOr(payload.Username, anonymousName),
		Timestamp: formatTimestamp(at),
		SenderID:  senderID,
	}, nil
}

// newTypingIndicator builds the relayed typing event. Typing payloads are
// not validated: fields that are missing or of the wrong type take their
// defaults, and a payload that is not an object is relayed with defaults only.
func newTypingIndicator(data json.RawMessage, at time.Time) TypingIndicator {
	var payload typingPayload
	if jsonKind(data) == '{' {
		_ = json.Unmarshal(data, &payload)
	}

	var isTyping bool
	_ = json.Unmarshal(payload.IsTyping, &isTyping)

	return TypingIndicator{
		Username:  stringOr(payload.Username, typingFallback),
		IsTyping:  isTyping,
		Timestamp: formatTimestamp(at),
	}
}

// jsonKind returns the first significant byte of data, or 0 when it is empty.
func jsonKind(data json.RawMessage) byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func stringOr(raw json.RawMessage, fallback string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return fallback
	}
	return s
}
