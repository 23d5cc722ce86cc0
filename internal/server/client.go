// Package server binds WebSocket connections to hub sessions, running the
// read/write pumps and keepalive for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Disconnect reasons reported to the hub.
const (
	ReasonClientDisconnect = "client disconnect"
	ReasonPingTimeout      = "ping timeout"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonMessageTooLarge  = "message too large"
)

// Client is the WebSocket transport for one session. The read pump turns
// frames into hub events, the write pump drains the session's outbound
// buffer and keeps the connection alive with pings.
type Client struct {
	conn           *websocket.Conn
	session        *Session
	hub            *Hub
	log            *slog.Logger
	maxMessageSize int64
	pingInterval   time.Duration
	pingTimeout    time.Duration
}

// NewClient creates a Client for conn bound to session.
func NewClient(conn *websocket.Conn, hub *Hub, session *Session, cfg Config, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Client{
		conn:           conn,
		session:        session,
		hub:            hub,
		log:            log.With("session", session.ID, "addr", session.RemoteAddr),
		maxMessageSize: cfg.MaxMessageSize,
		pingInterval:   cfg.PingInterval,
		pingTimeout:    cfg.PingTimeout,
	}
}

// Session returns the hub session served by this client.
func (c *Client) Session() *Session {
	return c.session
}

// Serve registers the session with the hub and starts both pumps. The
// connection is closed if registration fails or the hub is stopping.
func (c *Client) Serve() error {
	if err := c.hub.Connect(c.session); err != nil {
		c.closeConnection()
		return err
	}

	if !c.hub.Go(c.writePump, c.readPump) {
		c.closeConnection()
		return ErrHubClosed
	}
	return nil
}

func (c *Client) readDeadline() time.Time {
	return time.Now().Add(c.pingInterval + c.pingTimeout)
}

// setupReadConnection configures the read deadline and extends it on every pong
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(c.readDeadline()); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(c.readDeadline())
	})
}

// disconnectReason classifies a read error into the reason handed to the hub
func (c *Client) disconnectReason(err error) string {
	var netErr net.Error

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
		return ReasonMessageTooLarge

	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return ReasonClientDisconnect

	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonPingTimeout

	case errors.Is(err, io.EOF) || isExpectedCloseError(err) ||
		websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived):
		return ReasonTransportClose

	default:
		c.log.Warn("WebSocket read error", "error", err)
		return ReasonTransportError
	}
}

func (c *Client) readPump() {
	reason := ReasonTransportClose
	defer func() {
		c.hub.Disconnect(c.session, reason)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			reason = c.disconnectReason(err)
			return
		}
		if err := c.conn.SetReadDeadline(c.readDeadline()); err != nil {
			c.log.Warn("Error extending read deadline", "error", err)
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn("Discarding undecodable frame", "error", err)
			continue
		}

		c.hub.Dispatch(c.session, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.session.Outbound():
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the WebSocket connection, ignoring already-closed errors
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection", "error", err)
	}
}

// handleMessage writes one outgoing frame and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame once the session has ended
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error writing close message", "error", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing ping message", "error", err)
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
