package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/peersync/internal/transport"
	"github.com/roach88/peersync/internal/wire"
)

// PeerLink is one transport link as seen by the session: its handle, when a
// frame was last received on it, and whether it is open.
type PeerLink struct {
	conn transport.Link

	mu       sync.Mutex
	lastSeen time.Time
	open     bool
}

// NewPeerLink wraps conn. The link starts closed; the session marks it open
// once the transport reports it ready.
func NewPeerLink(conn transport.Link, now time.Time) *PeerLink {
	return &PeerLink{conn: conn, lastSeen: now}
}

// ID returns the transport link identifier.
func (l *PeerLink) ID() string { return l.conn.ID() }

// Peer returns the remote endpoint name.
func (l *PeerLink) Peer() string { return l.conn.Peer() }

// LastSeen returns the time of the last received frame (or of opening).
func (l *PeerLink) LastSeen() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen
}

// Touch records that a frame was received at now.
func (l *PeerLink) Touch(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSeen = now
}

// IsOpen reports whether frames may be sent on the link.
func (l *PeerLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// MarkOpen flags the link ready and resets its liveness clock.
func (l *PeerLink) MarkOpen(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = true
	l.lastSeen = now
}

// Close marks the link closed and closes the transport handle.
func (l *PeerLink) Close() error {
	l.mu.Lock()
	l.open = false
	l.mu.Unlock()
	return l.conn.Close()
}

// Send encodes m and writes it to the link.
func (l *PeerLink) Send(m wire.Message) error {
	data, err := wire.Encode(m)
	if err != nil {
		return err
	}
	return l.sendRaw(data)
}

func (l *PeerLink) sendRaw(data []byte) error {
	if !l.IsOpen() {
		return fmt.Errorf("send on link %s: %w", l.ID(), transport.ErrClosed)
	}
	return l.conn.Send(data)
}
