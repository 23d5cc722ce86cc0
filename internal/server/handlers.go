// Package server exposes HTTP handlers, including the WebSocket upgrade,
// the liveness endpoints and CORS handling.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	ActiveUsers   int    `json:"activeUsers"`
	UptimeSeconds int    `json:"uptimeSeconds"`
}

func newUpgrader(policy *OriginPolicy) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       policy.CheckOrigin,
		EnableCompression: true,
	}
}

// WebSocketHandler upgrades GET requests to WebSocket connections, creates a
// session for each one and hands it to the hub. Disallowed origins are
// refused with 403 by the upgrader.
func WebSocketHandler(hub *Hub, cfg Config, policy *OriginPolicy, log *slog.Logger) http.HandlerFunc {
	upgrader := newUpgrader(policy)
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		session := NewSession(r.RemoteAddr, cfg.SendBufferSize)
		client := NewClient(conn, hub, session, cfg, log)
		if err := client.Serve(); err != nil {
			log.Warn("Connection refused by hub", "addr", r.RemoteAddr, "error", err)
		}
	}
}

// RootHandler answers liveness probes on "/" and 404s everything else.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, "Not Found")
		return
	}
	_, _ = fmt.Fprint(w, "Chat relay server is running")
}

// HealthHandler reports the presence count and uptime as JSON.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status:        "ok",
			ActiveUsers:   hub.ActiveUsers(),
			UptimeSeconds: int(hub.Uptime().Seconds()),
		})
	}
}

// WithCORS adds CORS headers for allowed origins and answers preflight
// requests directly.
func WithCORS(policy *OriginPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); policy.Allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
