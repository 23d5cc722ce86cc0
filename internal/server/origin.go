// Package server normalizes and validates HTTP origins for WebSocket and
// CORS requests to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may reach the relay. Entries
// are exact origins ("https://chat.example.com"), "*" for any origin, or a
// host suffix wildcard ("*.netlify.app").
type OriginPolicy struct {
	allowAll bool
	exact    map[string]struct{}
	suffixes []string
	log      *slog.Logger
}

// NewOriginPolicy builds a policy from configured origins, logging and
// skipping entries that cannot be parsed.
func NewOriginPolicy(origins []string, log *slog.Logger) *OriginPolicy {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &OriginPolicy{exact: make(map[string]struct{}, len(origins)), log: log}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			p.allowAll = true
		case strings.HasPrefix(trimmed, "*."):
			p.suffixes = append(p.suffixes, strings.ToLower(trimmed[1:]))
		default:
			normalized, ok := normalizeOrigin(trimmed)
			if !ok {
				log.Warn("Ignoring invalid origin in configuration", "origin", origin)
				continue
			}
			p.exact[normalized] = struct{}{}
		}
	}

	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

// Allows reports whether the given Origin header value is permitted.
func (p *OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return false
	}

	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	if _, exists := p.exact[normalized]; exists {
		return true
	}

	parsed, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// CheckOrigin is used as the WebSocket upgrader's origin check.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	if p.Allows(r.Header.Get("Origin")) {
		return true
	}

	p.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}
