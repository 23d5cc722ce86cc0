package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOriginPolicy_Allows(t *testing.T) {
	policy := NewOriginPolicy([]string{
		"http://localhost:8080",
		"HTTPS://Chat.Example.com",
		"*.netlify.app",
		"not a url",
		"",
	}, nil)

	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "http://localhost:8080", want: true},
		{origin: "https://chat.example.com", want: true},
		{origin: "https://CHAT.example.com", want: true},
		{origin: "https://glowing-duck.netlify.app", want: true},
		{origin: "https://netlify.app.evil.com", want: false},
		{origin: "http://localhost:9090", want: false},
		{origin: "https://chat.example.com.evil.io", want: false},
		{origin: "", want: false},
		{origin: "null", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			require.Equal(t, tt.want, policy.Allows(tt.origin))
		})
	}
}

func TestOriginPolicy_AllowAll(t *testing.T) {
	req := require.New(t)
	policy := NewOriginPolicy([]string{"*"}, nil)

	req.True(policy.Allows("https://anything.example"))
	req.False(policy.Allows(""), "requests without an Origin are still refused")
}

func TestOriginPolicy_CheckOrigin(t *testing.T) {
	req := require.New(t)
	policy := NewOriginPolicy([]string{"http://localhost:8080"}, nil)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://localhost:8080")
	req.True(policy.CheckOrigin(r))

	r.Header.Set("Origin", "http://evil.example")
	req.False(policy.CheckOrigin(r))
}
