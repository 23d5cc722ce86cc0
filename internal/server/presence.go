package server

import "sync"

// Presence is the set of identities with a live session. Its size is the
// "active users" figure reported to clients.
type Presence struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewPresence returns an empty registry.
func NewPresence() *Presence {
	return &Presence{ids: make(map[string]struct{})}
}

// Join adds id and reports whether it was absent.
func (p *Presence) Join(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.ids[id]; ok {
		return false
	}
	p.ids[id] = struct{}{}
	return true
}

// Leave removes id and reports whether it was present.
func (p *Presence) Leave(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.ids[id]; !ok {
		return false
	}
	delete(p.ids, id)
	return true
}

// Contains reports whether id is currently registered.
func (p *Presence) Contains(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.ids[id]
	return ok
}

// Size returns the number of registered identities.
func (p *Presence) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ids)
}
