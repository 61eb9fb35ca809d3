package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/peersync/internal/heartbeat"
	"github.com/roach88/peersync/internal/reconnect"
	"github.com/roach88/peersync/internal/room"
	"github.com/roach88/peersync/internal/wire"
)

// ErrClosed is returned by operations on a coordinator whose loop has exited.
var ErrClosed = errors.New("session coordinator closed")

// errOpenTimeout is the cause recorded when an attempt exceeds OpenTimeout.
var errOpenTimeout = errors.New("open timed out")

// State is the coordinator's role in the session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateHost
	StateClient
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHost:
		return "host"
	case StateClient:
		return "client"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of the session.
type Status struct {
	State State
	// Role is the role being held or established; empty when idle.
	Role room.Role
	Code string
	// Participants counts this node plus every registered link; 0 when idle.
	Participants int
	Connecting   bool
	// Error is set after a failure and cleared by the next success or StopSync.
	Error  bool
	Locked bool
	// Endpoint is the local transport name, empty when none is open.
	Endpoint string
}

// DocumentStore is the local copy of the shared document.
type DocumentStore interface {
	Snapshot() (wire.Document, error)
	// ApplyRemote merges doc, or replaces the document when fullReplace is set.
	ApplyRemote(doc wire.Document, fullReplace bool) error
}

// LockApplier is implemented by document stores that honor the host's lock
// directive.
type LockApplier interface {
	SetLocked(locked bool) error
}

// RecordStore persists the descriptor of the active session.
type RecordStore interface {
	Save(ctx context.Context, d room.Descriptor) error
	Load(ctx context.Context) (room.Descriptor, bool, error)
	Clear(ctx context.Context) error
}

// Config holds the coordinator's timing and naming policy.
type Config struct {
	HostPrefix      string
	OpenTimeout     time.Duration
	Heartbeat       heartbeat.Config
	Reconnect       reconnect.Config
	CoalescePending bool
}

// DefaultConfig returns the 15s open timeout, default heartbeat and retry
// policies and the default host prefix.
func DefaultConfig() Config {
	return Config{
		HostPrefix:  room.DefaultHostPrefix,
		OpenTimeout: 15 * time.Second,
		Heartbeat:   heartbeat.DefaultConfig(),
		Reconnect:   reconnect.DefaultConfig(),
	}
}
