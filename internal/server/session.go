package server

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle position of a Session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the hub-side state of one client connection. The outbound
// buffer is written and closed only from the hub's Run goroutine; the
// transport drains it through Outbound.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	state  atomic.Int32
	send   chan []byte
	closed bool
}

// NewSession creates a session in the connecting state with a fresh
// identity and an outbound buffer of bufferSize frames.
func NewSession(remoteAddr string, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = defaultSendBufferSize
	}
	return &Session{
		ID:          uuid.NewString(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now().UTC(),
		send:        make(chan []byte, bufferSize),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Outbound returns the channel of encoded frames waiting to be written.
// It is closed once the session is disconnected.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

func (s *Session) transition(from, to SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// deliver queues a frame without blocking. It reports false when the session
// is closed or its buffer is full.
func (s *Session) deliver(frame []byte) bool {
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}
