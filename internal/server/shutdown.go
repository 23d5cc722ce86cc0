package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Coordinator drains the relay on termination: it warns every client, waits
// a grace period for the notice to be flushed, then closes all sessions and
// the HTTP listener. Clients that cannot be reached in time are dropped.
type Coordinator struct {
	hub     *Hub
	server  *http.Server
	grace   time.Duration
	timeout time.Duration
	log     *slog.Logger

	once sync.Once
	err  error
}

// NewCoordinator creates a coordinator for hub and server. server may be nil
// when the hub is served by someone else.
func NewCoordinator(hub *Hub, server *http.Server, cfg Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		hub:     hub,
		server:  server,
		grace:   cfg.ShutdownGrace,
		timeout: cfg.ShutdownTimeout,
		log:     log,
	}
}

// Shutdown runs the drain sequence once; later calls return the first result.
// Cancelling ctx only cuts the grace period short.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.err = c.shutdown(ctx)
	})
	return c.err
}

func (c *Coordinator) shutdown(ctx context.Context) error {
	c.log.Info("Shutting down server gracefully...")

	notified := c.hub.NotifyShutdown()
	c.log.Info("Shutdown notice queued", "sessions", notified, "grace", c.grace)

	timer := time.NewTimer(c.grace)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}

	var errs []error
	if err := c.hub.Shutdown(c.timeout); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	if c.server != nil {
		if err := ShutdownServer(c.server, c.timeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if len(errs) == 0 {
		c.log.Info("Server closed")
	}
	return errors.Join(errs...)
}
