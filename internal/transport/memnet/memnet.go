// Package memnet is an in-process transport. Endpoints live in a Network and
// links deliver frames synchronously to the remote handler, which keeps
// multi-node tests deterministic.
//
// The network can simulate failures: an outage makes new endpoints and links
// fail, a stall makes them hang without any event, a silenced endpoint's
// outbound frames are lost, and Drop removes an endpoint as if its process
// died.
package memnet

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/peersync/internal/transport"
)

// TapFunc observes every frame written on the network.
type TapFunc func(from, to string, data []byte)

// Network is a registry of named in-memory endpoints.
//
// Thread-safety: all methods are safe for concurrent use. Handlers are always
// invoked without network locks held.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
	silenced  map[string]bool
	outage    bool
	stall     bool
	tap       TapFunc
}

// New creates an empty network.
func New() *Network {
	return &Network{
		endpoints: make(map[string]*endpoint),
		silenced:  make(map[string]bool),
	}
}

var _ transport.Provider = (*Network)(nil)

// SetOutage makes new endpoints and links fail with ErrUnreachable.
// Existing links are unaffected.
func (n *Network) SetOutage(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outage = on
}

// SetStall makes new endpoints and links hang: no open or error event is
// ever delivered for them.
func (n *Network) SetStall(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stall = on
}

// Silence drops every frame sent by the endpoint called name while on is
// set. Its links stay open, so peers only notice through missing heartbeats.
func (n *Network) Silence(name string, on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if on {
		n.silenced[name] = true
	} else {
		delete(n.silenced, name)
	}
}

// SetTap installs fn to observe frames; nil removes it.
func (n *Network) SetTap(fn TapFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tap = fn
}

// Has reports whether an endpoint called name is registered.
func (n *Network) Has(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.endpoints[name]
	return ok
}

// Drop removes the endpoint called name without telling its own handler.
// Its peers see their links close.
func (n *Network) Drop(name string) bool {
	n.mu.Lock()
	ep, ok := n.endpoints[name]
	n.mu.Unlock()
	if !ok {
		return false
	}
	ep.shutdown(false)
	return true
}

// CreateEndpoint registers an endpoint. An empty name gets an anonymous one.
// A taken name yields EventEndpointError wrapping ErrNameTaken.
func (n *Network) CreateEndpoint(name string, h transport.Handler) (transport.Endpoint, error) {
	if h == nil {
		return nil, fmt.Errorf("memnet: nil handler")
	}
	if name == "" {
		name = "anon-" + uuid.NewString()
	}
	ep := &endpoint{net: n, name: name, handler: h, links: make(map[string]*link)}

	n.mu.Lock()
	stall, outage := n.stall, n.outage
	_, taken := n.endpoints[name]
	if !stall && !outage && !taken {
		n.endpoints[name] = ep
		ep.registered = true
	}
	n.mu.Unlock()

	switch {
	case stall:
	case outage:
		ep.emit(transport.Event{
			Kind: transport.EventEndpointError,
			Err:  fmt.Errorf("register %s: %w", name, transport.ErrUnreachable),
		})
	case taken:
		ep.emit(transport.Event{
			Kind: transport.EventEndpointError,
			Err:  fmt.Errorf("register %s: %w", name, transport.ErrNameTaken),
		})
	default:
		ep.emit(transport.Event{Kind: transport.EventEndpointOpen})
	}
	return ep, nil
}

func (n *Network) lookup(name string) (*endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[name]
	return ep, ok
}

func (n *Network) isSilenced(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.silenced[name]
}

func (n *Network) observe(from, to string, data []byte) {
	n.mu.Lock()
	tap := n.tap
	n.mu.Unlock()
	if tap != nil {
		tap(from, to, data)
	}
}

type endpoint struct {
	net     *Network
	name    string
	handler transport.Handler

	mu         sync.Mutex
	links      map[string]*link
	registered bool
	closed     bool
}

func (e *endpoint) Name() string { return e.name }

func (e *endpoint) emit(ev transport.Event) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if !closed {
		e.handler(ev)
	}
}

// ConnectTo opens a link to peerName. The local EventLinkOpen is delivered
// before the remote side hears about the link, so the dialer is always ready
// for the first frame the acceptor sends.
func (e *endpoint) ConnectTo(peerName string) (transport.Link, error) {
	e.mu.Lock()
	closed, registered := e.closed, e.registered
	e.mu.Unlock()
	if closed || !registered {
		return nil, fmt.Errorf("connect to %s: %w", peerName, transport.ErrClosed)
	}

	local := &link{id: uuid.NewString(), owner: e, peer: peerName}

	e.net.mu.Lock()
	stall, outage := e.net.stall, e.net.outage
	e.net.mu.Unlock()
	if stall {
		return local, nil
	}

	remote, ok := e.net.lookup(peerName)
	if outage || !ok || remote == e {
		e.emit(transport.Event{
			Kind: transport.EventLinkError,
			Link: local,
			Err:  fmt.Errorf("connect to %s: %w", peerName, transport.ErrUnreachable),
		})
		return local, nil
	}

	accepted := &link{id: uuid.NewString(), owner: remote, peer: e.name}
	local.other, accepted.other = accepted, local
	e.track(local)
	remote.track(accepted)

	e.emit(transport.Event{Kind: transport.EventLinkOpen, Link: local})
	remote.emit(transport.Event{Kind: transport.EventIncoming, Link: accepted})
	remote.emit(transport.Event{Kind: transport.EventLinkOpen, Link: accepted})
	return local, nil
}

func (e *endpoint) track(l *link) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.links[l.id] = l
}

func (e *endpoint) untrack(l *link) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.links, l.id)
}

// Close releases the name and closes every link; peers see EventLinkClosed.
func (e *endpoint) Close() error {
	e.shutdown(true)
	return nil
}

func (e *endpoint) shutdown(graceful bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	links := make([]*link, 0, len(e.links))
	for _, l := range e.links {
		links = append(links, l)
	}
	e.links = map[string]*link{}
	registered := e.registered
	e.mu.Unlock()

	if registered {
		e.net.mu.Lock()
		if e.net.endpoints[e.name] == e {
			delete(e.net.endpoints, e.name)
		}
		e.net.mu.Unlock()
	}

	for _, l := range links {
		var cause error
		if !graceful {
			cause = transport.ErrUnreachable
		}
		l.closeWith(cause)
	}
}

type link struct {
	id    string
	owner *endpoint
	peer  string
	other *link

	mu     sync.Mutex
	closed bool
}

func (l *link) ID() string   { return l.id }
func (l *link) Peer() string { return l.peer }

// Send writes data to the remote side.
func (l *link) Send(data []byte) error {
	l.mu.Lock()
	closed := l.closed || l.other == nil
	l.mu.Unlock()
	if closed {
		return fmt.Errorf("send on %s: %w", l.id, transport.ErrClosed)
	}

	net := l.owner.net
	if net.isSilenced(l.owner.name) {
		return nil
	}
	net.observe(l.owner.name, l.peer, data)

	other := l.other
	other.mu.Lock()
	otherClosed := other.closed
	other.mu.Unlock()
	if otherClosed {
		return nil
	}
	frame := append([]byte(nil), data...)
	other.owner.emit(transport.Event{Kind: transport.EventLinkData, Link: other, Data: frame})
	return nil
}

// Close closes both halves and reports EventLinkClosed to the remote side.
func (l *link) Close() error {
	l.closeWith(nil)
	return nil
}

func (l *link) closeWith(cause error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.owner.untrack(l)

	other := l.other
	if other == nil {
		return
	}
	other.mu.Lock()
	already := other.closed
	other.closed = true
	other.mu.Unlock()
	if already {
		return
	}
	other.owner.untrack(other)
	other.owner.emit(transport.Event{Kind: transport.EventLinkClosed, Link: other, Err: cause})
}
