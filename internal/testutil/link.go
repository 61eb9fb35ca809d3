package testutil

import (
	"sync"

	"github.com/roach88/peersync/internal/transport"
)

// FakeLink is a transport.Link that records what is sent on it.
type FakeLink struct {
	id   string
	peer string

	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	sendErr error
}

// NewFakeLink creates an open fake link.
func NewFakeLink(id, peer string) *FakeLink {
	return &FakeLink{id: id, peer: peer}
}

func (l *FakeLink) ID() string   { return l.id }
func (l *FakeLink) Peer() string { return l.peer }

// Send records data, or returns the configured error.
func (l *FakeLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return transport.ErrClosed
	}
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, append([]byte(nil), data...))
	return nil
}

// Close marks the link closed.
func (l *FakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// FailSends makes every later Send return err.
func (l *FakeLink) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// Sent returns copies of every frame sent so far.
func (l *FakeLink) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.sent))
	copy(out, l.sent)
	return out
}

// Closed reports whether Close was called.
func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
