// Package daemon runs the relay under svc, wiring configuration, logging,
// the hub and the HTTP listener into the service lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/judwhite/go-svc"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/chatrelay/internal/server"
)

// Program implements svc.Service for the relay.
type Program struct {
	cfg server.Config
	log *slog.Logger

	hub         *server.Hub
	httpServer  *http.Server
	listener    net.Listener
	coordinator *server.Coordinator
	wg          sync.WaitGroup
}

// New creates an uninitialized program; svc.Run drives the rest.
func New() *Program {
	return &Program{}
}

// Init implements svc.Service
func (p *Program) Init(_ svc.Environment) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	p.cfg = cfg
	p.log = logs.GetLoggerFromString(cfg.LogLevel)
	return nil
}

// Start implements svc.Service. A port that cannot be bound is returned as
// an error so the process exits.
func (p *Program) Start() error {
	listener, err := net.Listen("tcp", p.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.cfg.Addr(), err)
	}
	p.listener = listener

	policy := server.NewOriginPolicy(p.cfg.AllowedOrigins, p.log)
	p.hub = server.NewHub(p.cfg, p.log)
	p.httpServer = server.CreateServer(p.cfg.Addr(), server.SetupRoutes(p.hub, p.cfg, policy, p.log))
	p.coordinator = server.NewCoordinator(p.hub, p.httpServer, p.cfg, p.log)

	go p.hub.Run()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("HTTP server stopped", "error", err)
		}
	}()

	p.log.Info("Chat relay server started",
		"port", p.cfg.Port,
		"environment", p.cfg.Environment,
		"allowedOrigins", strings.Join(p.cfg.AllowedOrigins, ", "),
		"url", "http://"+p.Addr(),
	)
	return nil
}

// Stop implements svc.Service. Drain failures are logged but do not change
// the exit status.
func (p *Program) Stop() error {
	if p.coordinator == nil {
		return nil
	}

	if err := p.coordinator.Shutdown(context.Background()); err != nil {
		p.log.Error("Shutdown did not complete cleanly", "error", err)
	}
	p.wg.Wait()
	p.log.Info("Chat relay server stopped")
	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (p *Program) Addr() string {
	if p.listener == nil {
		return p.cfg.Addr()
	}
	return p.listener.Addr().String()
}

// Hub exposes the running hub.
func (p *Program) Hub() *server.Hub {
	return p.hub
}
