package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	hub := NewHub(cfg, nil)
	go hub.Run()
	t.Cleanup(func() {
		_ = hub.Shutdown(time.Second)
	})
	return hub
}

func connectSession(t *testing.T, hub *Hub) *Session {
	t.Helper()
	s := NewSession("127.0.0.1:0", 64)
	require.NoError(t, hub.Connect(s))
	return s
}

// nextFrame pops the oldest queued frame. Hub calls are synchronous, so
// anything the hub sent is already queued when they return.
func nextFrame(t *testing.T, s *Session) Envelope {
	t.Helper()
	select {
	case frame, ok := <-s.Outbound():
		require.True(t, ok, "outbound buffer of %s is closed", s.ID)
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	default:
		require.FailNow(t, "no frame queued", "session %s", s.ID)
		return Envelope{}
	}
}

func requireNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case frame, ok := <-s.Outbound():
		if ok {
			require.FailNow(t, "unexpected frame", "%s", frame)
		}
	default:
	}
}

func requireClosed(t *testing.T, s *Session) {
	t.Helper()
	for {
		select {
		case _, ok := <-s.Outbound():
			if !ok {
				return
			}
		default:
			require.FailNow(t, "outbound buffer still open", "session %s", s.ID)
		}
	}
}

func drain(s *Session) {
	for {
		select {
		case _, ok := <-s.Outbound():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func chatEnvelope(t *testing.T, payload any) Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{Event: EventSendMessage, Data: data}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
