// Package server defines the wire envelope and the event payloads exchanged
// between relay clients and the hub.
package server

import (
	"encoding/json"
	"time"
)

// Event names carried in Envelope.Event.
const (
	EventSendMessage      = "send-message"
	EventTyping           = "typing"
	EventConnectionStatus = "connection-status"
	EventUserJoined       = "user-joined"
	EventReceiveMessage   = "receive-message"
	EventMessageSent      = "message-sent"
	EventError            = "error"
	EventUserTyping       = "user-typing"
	EventUserLeft         = "user-left"
	EventServerShutdown   = "server-shutdown"
)

const (
	welcomeMessage  = "Welcome! You're successfully connected to the server."
	joinedMessage   = "A new user joined the chat"
	leftMessage     = "A user left the chat"
	shutdownMessage = "Server is shutting down. Please reconnect in a moment."

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Envelope is the JSON frame used in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectionStatus greets a freshly connected client.
type ConnectionStatus struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	ActiveUsers int    `json:"activeUsers"`
}

// PresenceNotice announces a join or a leave to the other clients.
type PresenceNotice struct {
	Message     string `json:"message"`
	ActiveUsers int    `json:"activeUsers"`
	Timestamp   string `json:"timestamp"`
}

// ChatMessage is a sanitized chat line ready for fan-out. It is only built
// by NewChatMessage and lives for a single broadcast.
type ChatMessage struct {
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	SenderID  string `json:"senderId"`
}

// DeliveryReceipt acknowledges a chat message to its sender.
type DeliveryReceipt struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ErrorNotice reports a rejected event to its originator.
type ErrorNotice struct {
	Message string `json:"message"`
}

// TypingIndicator is relayed as-is apart from the username default.
type TypingIndicator struct {
	Username  string `json:"username"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp string `json:"timestamp"`
}

// ShutdownNotice is sent to everyone before the server closes.
type ShutdownNotice struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type typingPayload struct {
	Username json.RawMessage `json:"username"`
	IsTyping json.RawMessage `json:"isTyping"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
