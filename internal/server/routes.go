// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import (
	"log/slog"
	"net/http"
)

// SetupRoutes returns the relay's HTTP handler: the liveness and health
// endpoints plus the WebSocket endpoint, all behind the CORS wrapper.
func SetupRoutes(hub *Hub, cfg Config, policy *OriginPolicy, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", RootHandler)
	mux.HandleFunc("/health", HealthHandler(hub))
	mux.Handle("/ws", WebSocketHandler(hub, cfg, policy, log))
	return WithCORS(policy, mux)
}
