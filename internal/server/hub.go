// Package server coordinates session registration, event handling, presence
// and fan-out for the relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// ResultKind classifies how the hub disposed of one inbound event.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultIgnored
	ResultRejected
	ResultFault
)

// Result is returned for every dispatched event. Err is set for every kind
// except ResultOK.
type Result struct {
	Kind ResultKind
	Err  error
}

func rejected(err error) Result { return Result{Kind: ResultRejected, Err: err} }

func fault(err error) Result { return Result{Kind: ResultFault, Err: err} }

type registerRequest struct {
	session *Session
	reply   chan bool
}

type unregisterRequest struct {
	session *Session
	reason  string
	reply   chan bool
}

type inboundRequest struct {
	session  *Session
	envelope Envelope
	reply    chan Result
}

type noticeRequest struct {
	event   string
	payload any
	reply   chan int
}

// Hub owns every live session together with the presence registry and the
// rate limiter. All lifecycle and inbound events are applied one at a time
// on the goroutine running Run, so handlers never race with each other.
type Hub struct {
	sessions   map[string]*Session
	presence   *Presence
	limiter    *RateLimiter
	register   chan registerRequest
	unregister chan unregisterRequest
	inbound    chan inboundRequest
	notices    chan noticeRequest
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	goMu       sync.Mutex
	stopping   bool
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
	now        func() time.Time
	startedAt  time.Time
}

// NewHub creates a hub using the rate limit settings from cfg. The hub does
// nothing until Run is started.
func NewHub(cfg Config, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[string]*Session),
		presence:   NewPresence(),
		limiter:    NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		register:   make(chan registerRequest),
		unregister: make(chan unregisterRequest),
		inbound:    make(chan inboundRequest),
		notices:    make(chan noticeRequest),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
		now:        time.Now,
		startedAt:  time.Now(),
	}
}

// Run starts the hub's event loop. It returns after Shutdown has been called
// and every remaining session has been closed.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case req := <-h.register:
			req.reply <- h.handleRegister(req.session)

		case req := <-h.unregister:
			req.reply <- h.handleUnregister(req.session, req.reason)

		case req := <-h.inbound:
			req.reply <- h.handleInbound(req.session, req.envelope)

		case req := <-h.notices:
			req.reply <- h.broadcastExcept("", req.event, req.payload)
		}
	}
}

// await hands req to the event loop and waits for its reply. It reports false
// when the hub stopped before the request was handled.
func await[Req, Res any](h *Hub, queue chan<- Req, req Req, reply <-chan Res) (Res, bool) {
	var zero Res
	select {
	case queue <- req:
	case <-h.ctx.Done():
		return zero, false
	}

	select {
	case res := <-reply:
		return res, true
	case <-h.done:
		// The loop always replies before it can exit.
		select {
		case res := <-reply:
			return res, true
		default:
			return zero, false
		}
	}
}

// Connect registers s, greets it and announces it to everyone else. It
// fails with ErrSessionInactive when s is not in the connecting state.
func (h *Hub) Connect(s *Session) error {
	req := registerRequest{session: s, reply: make(chan bool, 1)}
	registered, handled := await(h, h.register, req, req.reply)
	if !handled {
		return ErrHubClosed
	}
	if !registered {
		return ErrSessionInactive
	}
	return nil
}

// Disconnect ends s for the given reason. Only the first call for a session
// performs cleanup; it reports whether this call did.
func (h *Hub) Disconnect(s *Session, reason string) bool {
	req := unregisterRequest{session: s, reason: reason, reply: make(chan bool, 1)}
	cleaned, _ := await(h, h.unregister, req, req.reply)
	return cleaned
}

// Dispatch applies one inbound event from s and returns how it was handled.
func (h *Hub) Dispatch(s *Session, env Envelope) Result {
	req := inboundRequest{session: s, envelope: env, reply: make(chan Result, 1)}
	res, handled := await(h, h.inbound, req, req.reply)
	if !handled {
		return Result{Kind: ResultIgnored, Err: ErrHubClosed}
	}
	return res
}

// NotifyShutdown sends a server-shutdown notice to every live session and
// returns how many accepted it.
func (h *Hub) NotifyShutdown() int {
	req := noticeRequest{
		event:   EventServerShutdown,
		payload: ShutdownNotice{Message: shutdownMessage, Timestamp: h.timestamp()},
		reply:   make(chan int, 1),
	}
	delivered, _ := await(h, h.notices, req, req.reply)
	return delivered
}

// ActiveUsers returns the presence count.
func (h *Hub) ActiveUsers() int {
	return h.presence.Size()
}

// Uptime returns how long ago the hub was created.
func (h *Hub) Uptime() time.Duration {
	return time.Since(h.startedAt)
}

// Go runs each fn on a goroutine that Shutdown waits for. Once Shutdown has
// begun nothing is started and Go reports false.
func (h *Hub) Go(fns ...func()) bool {
	h.goMu.Lock()
	defer h.goMu.Unlock()
	if h.stopping {
		return false
	}

	h.wg.Add(len(fns))
	for _, fn := range fns {
		go func() {
			defer h.wg.Done()
			fn()
		}()
	}
	return true
}

func (h *Hub) handleRegister(s *Session) bool {
	if s == nil {
		h.log.Warn("Received nil session registration; skipping")
		return false
	}
	if s.State() != StateConnecting {
		h.log.Warn("Refusing to register session", "session", s.ID, "state", s.State())
		return false
	}

	h.mutex.Lock()
	h.sessions[s.ID] = s
	h.mutex.Unlock()
	h.presence.Join(s.ID)
	active := h.presence.Size()
	ts := h.timestamp()

	h.send(s, EventConnectionStatus, ConnectionStatus{
		Status:      "connected",
		Message:     welcomeMessage,
		Timestamp:   ts,
		ActiveUsers: active,
	})
	h.broadcastExcept(s.ID, EventUserJoined, PresenceNotice{
		Message:     joinedMessage,
		ActiveUsers: active,
		Timestamp:   ts,
	})

	s.transition(StateConnecting, StateActive)
	h.log.Info("Session connected", "session", s.ID, "addr", s.RemoteAddr, "active", active)
	return true
}

func (h *Hub) handleUnregister(s *Session, reason string) bool {
	if s == nil {
		return false
	}
	if !s.transition(StateActive, StateDisconnected) {
		// Never registered: nothing to undo beyond releasing the writer.
		if s.transition(StateConnecting, StateDisconnected) {
			s.close()
		}
		return false
	}

	h.mutex.Lock()
	delete(h.sessions, s.ID)
	h.mutex.Unlock()
	h.presence.Leave(s.ID)
	h.limiter.Forget(s.ID)
	s.close()

	active := h.presence.Size()
	h.broadcastExcept(s.ID, EventUserLeft, PresenceNotice{
		Message:     leftMessage,
		ActiveUsers: active,
		Timestamp:   h.timestamp(),
	})

	h.log.Info("Session disconnected", "session", s.ID, "addr", s.RemoteAddr, "reason", reason, "active", active)
	return true
}

func (h *Hub) handleInbound(s *Session, env Envelope) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic while handling event", "session", s.ID, "event", env.Event, "panic", r)
			res = fault(fmt.Errorf("panic: %v", r))
			h.send(s, EventError, ErrorNotice{Message: clientMessage(res.Err)})
		}
	}()

	if s == nil || s.State() != StateActive || !h.isLive(s) {
		return Result{Kind: ResultIgnored, Err: ErrSessionInactive}
	}

	switch env.Event {
	case EventSendMessage:
		res = h.handleSendMessage(s, env.Data)
	case EventTyping:
		res = h.handleTyping(s, env.Data)
	default:
		h.log.Debug("Ignoring unknown event", "session", s.ID, "event", env.Event)
		return Result{Kind: ResultIgnored, Err: fmt.Errorf("unknown event %q", env.Event)}
	}

	switch res.Kind {
	case ResultFault:
		h.log.Error("Failed to process event", "session", s.ID, "event", env.Event, "error", res.Err)
		h.send(s, EventError, ErrorNotice{Message: clientMessage(res.Err)})
	case ResultRejected:
		h.send(s, EventError, ErrorNotice{Message: clientMessage(res.Err)})
	}
	return res
}

func (h *Hub) handleSendMessage(s *Session, data json.RawMessage) Result {
	if !h.limiter.Allow(s.ID) {
		h.log.Warn("Rate limit exceeded; discarding message", "session", s.ID, "addr", s.RemoteAddr)
		return rejected(ErrRateLimited)
	}

	msg, err := NewChatMessage(data, s.ID, h.now())
	if err != nil {
		h.log.Debug("Rejected message", "session", s.ID, "error", err)
		return rejected(err)
	}

	frame, err := encodeFrame(EventReceiveMessage, msg)
	if err != nil {
		return fault(fmt.Errorf("encode chat message: %w", err))
	}

	recipients := h.broadcastFrame(s.ID, frame)
	h.log.Info("Message relayed", "session", s.ID, "username", msg.Username, "recipients", recipients)
	h.log.Debug("Message content", "session", s.ID, "message", msg.Message)

	h.send(s, EventMessageSent, DeliveryReceipt{Status: "delivered", Timestamp: msg.Timestamp})
	return Result{Kind: ResultOK}
}

func (h *Hub) handleTyping(s *Session, data json.RawMessage) Result {
	h.broadcastExcept(s.ID, EventUserTyping, newTypingIndicator(data, h.now()))
	return Result{Kind: ResultOK}
}

// send queues one event for s alone.
func (h *Hub) send(s *Session, event string, payload any) bool {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("Error encoding event", "event", event, "error", err)
		return false
	}
	if !s.deliver(frame) {
		h.log.Warn("Dropped event for session", "session", s.ID, "event", event)
		return false
	}
	return true
}

// broadcastExcept encodes payload once and queues it for every live session
// other than origin. An empty origin reaches everyone.
func (h *Hub) broadcastExcept(origin, event string, payload any) int {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("Error encoding broadcast", "event", event, "error", err)
		return 0
	}
	return h.broadcastFrame(origin, frame)
}

// broadcastFrame delivers frame to every live session except origin and
// returns the number of sessions that accepted it. A recipient that is
// closing or backed up is skipped.
func (h *Hub) broadcastFrame(origin string, frame []byte) int {
	targets := lo.Filter(h.snapshot(), func(s *Session, _ int) bool {
		return s.ID != origin
	})

	delivered := 0
	for _, s := range targets {
		if s.deliver(frame) {
			delivered++
			continue
		}
		h.log.Warn("Dropped broadcast for session", "session", s.ID, "addr", s.RemoteAddr)
	}
	return delivered
}

// snapshot returns the live sessions at this instant.
func (h *Hub) snapshot() []*Session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.Values(h.sessions)
}

func (h *Hub) isLive(s *Session) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sessions[s.ID] == s
}

func (h *Hub) timestamp() string {
	return formatTimestamp(h.now())
}

// shutdownSessions closes every remaining session. Their write pumps then
// send a close frame and release the connection.
func (h *Hub) shutdownSessions() {
	h.log.Info("Shutting down all sessions...")

	h.mutex.Lock()
	sessions := lo.Values(h.sessions)
	h.sessions = make(map[string]*Session)
	h.mutex.Unlock()

	for _, s := range sessions {
		s.state.Store(int32(StateDisconnected))
		h.presence.Leave(s.ID)
		h.limiter.Forget(s.ID)
		s.close()
	}

	h.log.Info("Closed sessions", "count", len(sessions))
}

// Shutdown stops the event loop, closes all sessions and waits for the
// goroutines started with Go, or until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.goMu.Lock()
	h.stopping = true
	h.goMu.Unlock()

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
