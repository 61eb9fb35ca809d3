// Package registry owns the set of peer links held by a node and fans
// messages out across them.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/peersync/internal/wire"
)

// Registry is the single owner of a node's PeerLinks. Other components only
// see snapshots.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	links map[string]*PeerLink
	order []string // registration order, for deterministic fan-out
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{links: make(map[string]*PeerLink)}
}

// Register adds l. Registering an ID twice replaces the earlier link.
func (r *Registry) Register(l *PeerLink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.links[l.ID()]; !exists {
		r.order = append(r.order, l.ID())
	}
	r.links[l.ID()] = l
}

// Unregister removes the link with the given ID and returns it.
func (r *Registry) Unregister(id string) (*PeerLink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[id]
	if !ok {
		return nil, false
	}
	delete(r.links, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return l, true
}

// Get looks up a link by ID.
func (r *Registry) Get(id string) (*PeerLink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[id]
	return l, ok
}

// Snapshot returns the registered links in registration order.
func (r *Registry) Snapshot() []*PeerLink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*PeerLink, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.links[id])
	}
	return out
}

// Count returns the number of registered links, open or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}

// OpenCount returns the number of registered links that are open.
func (r *Registry) OpenCount() int {
	n := 0
	for _, l := range r.Snapshot() {
		if l.IsOpen() {
			n++
		}
	}
	return n
}

// Broadcast sends m to every open link except the one with excludeID (pass
// "" to exclude nothing). It returns the number of links written to; send
// failures are joined into the error and do not stop the fan-out.
func (r *Registry) Broadcast(m wire.Message, excludeID string) (int, error) {
	data, err := wire.Encode(m)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, l := range r.Snapshot() {
		if l.ID() == excludeID || !l.IsOpen() {
			continue
		}
		if err := l.sendRaw(data); err != nil {
			errs = append(errs, fmt.Errorf("link %s: %w", l.ID(), err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// CloseAll closes and removes every link.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	links := r.links
	r.links = make(map[string]*PeerLink)
	r.order = nil
	r.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}
}
