package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "markup is escaped", input: "<script>hi</script>", want: "&lt;script&gt;hi&lt;/script&gt;"},
		{name: "whitespace is trimmed", input: "  hello\n\t", want: "hello"},
		{name: "ampersands are left alone", input: "fish & chips", want: "fish & chips"},
		{name: "plain text is unchanged", input: "hi", want: "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizeText(tt.input))
		})
	}
}

func TestSanitizeText_Truncates(t *testing.T) {
	req := require.New(t)

	req.Len(SanitizeText(strings.Repeat("a", 1500)), 1000)

	// Truncation counts characters, not bytes
	out := SanitizeText(strings.Repeat("é", 1200))
	req.Equal(1000, utf8.RuneCountInString(out))
	req.True(utf8.ValidString(out))

	// Escaping happens first, so entities count toward the limit
	out = SanitizeText(strings.Repeat("<", 300))
	req.Equal(1000, utf8.RuneCountInString(out))
	req.True(strings.HasPrefix(out, "&lt;"))
}

func TestNewChatMessage(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 2, 3, 4, 5, 6, 7_000_000, time.FixedZone("CET", 3600))

	msg, err := NewChatMessage(json.RawMessage(`{"message":" <i>hey</i> ","username":"bob"}`), "sender-1", at)
	req.NoError(err)
	req.Equal(ChatMessage{
		Message:   "&lt;i&gt;hey&lt;/i&gt;",
		Username:  "bob",
		Timestamp: "2024-02-03T03:05:06.007Z",
		SenderID:  "sender-1",
	}, msg)
}

func TestNewChatMessage_UsernameDefault(t *testing.T) {
	for _, data := range []string{
		`{"message":"x"}`,
		`{"message":"x","username":""}`,
		`{"message":"x","username":null}`,
		`{"message":"x","username":7}`,
	} {
		msg, err := NewChatMessage(json.RawMessage(data), "s", time.Now())
		require.NoError(t, err, data)
		require.Equal(t, anonymousName, msg.Username, data)
	}
}

func TestNewChatMessage_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "empty", data: ``, want: ErrInvalidFormat},
		{name: "null", data: `null`, want: ErrInvalidFormat},
		{name: "array", data: `[1,2]`, want: ErrEmptyMessage},
		{name: "empty array", data: `[]`, want: ErrEmptyMessage},
		{name: "string", data: `"hello"`, want: ErrInvalidFormat},
		{name: "number", data: `12`, want: ErrInvalidFormat},
		{name: "broken object", data: `{"message":`, want: ErrInvalidFormat},
		{name: "missing message", data: `{}`, want: ErrEmptyMessage},
		{name: "null message", data: `{"message":null}`, want: ErrEmptyMessage},
		{name: "only whitespace", data: `{"message":"   "}`, want: ErrEmptyMessage},
		{name: "object message", data: `{"message":{"text":"hi"}}`, want: ErrEmptyMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChatMessage(json.RawMessage(tt.data), "s", time.Now())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewTypingIndicator(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := "2024-01-01T00:00:00.000Z"

	tests := []struct {
		name string
		data string
		want TypingIndicator
	}{
		{name: "well formed", data: `{"username":"amy","isTyping":true}`, want: TypingIndicator{Username: "amy", IsTyping: true}},
		{name: "no payload", data: ``, want: TypingIndicator{Username: typingFallback}},
		{name: "numeric username", data: `{"username":5,"isTyping":true}`, want: TypingIndicator{Username: typingFallback, IsTyping: true}},
		{name: "empty username", data: `{"username":"","isTyping":true}`, want: TypingIndicator{Username: typingFallback, IsTyping: true}},
		{name: "string flag", data: `{"username":"amy","isTyping":"yes"}`, want: TypingIndicator{Username: "amy"}},
		{name: "not an object", data: `"typing"`, want: TypingIndicator{Username: typingFallback}},
		{name: "broken object", data: `{"username":`, want: TypingIndicator{Username: typingFallback}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want.Timestamp = ts
			require.Equal(t, tt.want, newTypingIndicator(json.RawMessage(tt.data), at))
		})
	}
}
