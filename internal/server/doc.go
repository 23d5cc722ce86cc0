// Package server implements the real-time chat relay: the hub that tracks
// sessions and presence, rate-limits and sanitizes chat messages and fans
// events out to every other client, plus its WebSocket and HTTP transport.
//
// The implementation is organized into specialized files for configuration,
// hub management, sessions, clients, routing, and HTTP handlers.
package server
