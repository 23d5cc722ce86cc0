// Package testhelpers provides helpers shared by the integration tests:
// starting a relay on a free port, issuing HTTP requests and exchanging
// event envelopes over WebSocket connections.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/daemon"
	"github.com/Tyrowin/chatrelay/internal/server"
)

// AllowedOrigin is accepted by relays started with StartRelay.
const AllowedOrigin = "http://localhost:8080"

const readTimeout = 2 * time.Second

// StartRelay runs a relay on a loopback port with the given environment
// overrides and stops it when the test ends.
func StartRelay(t *testing.T, env map[string]string) *daemon.Program {
	t.Helper()
	t.Setenv("PORT", "127.0.0.1:0")
	t.Setenv("ALLOWED_ORIGINS", AllowedOrigin)
	t.Setenv("SHUTDOWN_GRACE", "10ms")
	t.Setenv("LOG_LEVEL", "error")
	for key, value := range env {
		t.Setenv(key, value)
	}

	prg := daemon.New()
	require.NoError(t, prg.Init(nil))
	require.NoError(t, prg.Start())
	t.Cleanup(func() { _ = prg.Stop() })
	return prg
}

// MakeRequest executes an HTTP request against the relay with a 5 second timeout.
func MakeRequest(t *testing.T, method, url string, header http.Header) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// WebSocketURL returns the ws:// endpoint for a relay listening on addr.
func WebSocketURL(addr string) string {
	return "ws://" + strings.TrimPrefix(addr, "http://") + "/ws"
}

// DialWebSocket opens a connection with the given Origin header. The
// handshake response is returned so callers can inspect refusals.
func DialWebSocket(t *testing.T, addr, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(WebSocketURL(addr), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// Connect opens an allowed connection and consumes its greeting.
func Connect(t *testing.T, addr string) (*websocket.Conn, server.ConnectionStatus) {
	t.Helper()
	conn, _, err := DialWebSocket(t, addr, AllowedOrigin)
	require.NoError(t, err)

	env := Receive(t, conn)
	require.Equal(t, server.EventConnectionStatus, env.Event)
	return conn, Decode[server.ConnectionStatus](t, env)
}

// Send writes one event envelope.
func Send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(server.Envelope{Event: event, Data: data}))
}

// Receive reads the next envelope, failing after a short timeout.
func Receive(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))

	var env server.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// Expect reads the next envelope and checks its event name.
func Expect[T any](t *testing.T, conn *websocket.Conn, event string) T {
	t.Helper()
	env := Receive(t, conn)
	require.Equal(t, event, env.Event, "payload: %s", env.Data)
	return Decode[T](t, env)
}

// ExpectNothing fails if any frame arrives within d.
func ExpectNothing(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))

	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
}

// Decode unmarshals an envelope's payload.
func Decode[T any](t *testing.T, env server.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// CloseWebSocket sends a normal close frame and releases the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
