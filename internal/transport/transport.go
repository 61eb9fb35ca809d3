// Package transport defines the peer-connection contract the session
// coordinator consumes: named endpoints, ordered reliable links between
// them, and the events those produce.
//
// Implementations live in subpackages: memnet (in-process, used by tests and
// the scenario harness) and wsnet (websockets with mDNS name resolution).
package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNameTaken reports that another endpoint already owns the requested
	// name. For a host this is a fatal room-code collision.
	ErrNameTaken = errors.New("endpoint name already taken")

	// ErrUnreachable reports that a named peer could not be found or dialed.
	ErrUnreachable = errors.New("peer unreachable")

	// ErrClosed is returned when using a closed endpoint or link.
	ErrClosed = errors.New("transport closed")
)

// EventKind enumerates transport events.
type EventKind int

const (
	// EventEndpointOpen: the endpoint is registered and can accept or dial links.
	EventEndpointOpen EventKind = iota + 1
	// EventEndpointError: the endpoint failed; Err says why.
	EventEndpointError
	// EventIncoming: a remote peer opened a link to this endpoint.
	EventIncoming
	// EventLinkOpen: a link is ready for Send.
	EventLinkOpen
	// EventLinkData: a frame arrived on Link.
	EventLinkData
	// EventLinkClosed: the remote side closed Link.
	EventLinkClosed
	// EventLinkError: Link failed to open or broke.
	EventLinkError
)

func (k EventKind) String() string {
	switch k {
	case EventEndpointOpen:
		return "endpoint_open"
	case EventEndpointError:
		return "endpoint_error"
	case EventIncoming:
		return "incoming"
	case EventLinkOpen:
		return "link_open"
	case EventLinkData:
		return "link_data"
	case EventLinkClosed:
		return "link_closed"
	case EventLinkError:
		return "link_error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to an endpoint's Handler.
type Event struct {
	Kind EventKind
	Link Link   // nil for endpoint events
	Data []byte // EventLinkData only
	Err  error  // error events, optionally EventLinkClosed
}

// Handler receives an endpoint's events. Events of one endpoint are
// delivered one at a time and, per link, in order. Handlers must not block.
type Handler func(Event)

// Provider creates endpoints.
type Provider interface {
	// CreateEndpoint starts registering name, or an anonymous endpoint when
	// name is empty. The outcome arrives as EventEndpointOpen or
	// EventEndpointError; a returned error means nothing was started.
	CreateEndpoint(name string, h Handler) (Endpoint, error)
}

// Endpoint is one addressable node on the transport.
type Endpoint interface {
	Name() string

	// ConnectTo starts opening a link to peerName. The outcome arrives as
	// EventLinkOpen or EventLinkError for the returned link.
	ConnectTo(peerName string) (Link, error)

	// Close closes every link of the endpoint and releases its name.
	Close() error
}

// Link is an ordered, reliable, message-oriented channel between two endpoints.
//
// Closing a link reports EventLinkClosed to the remote side only.
type Link interface {
	ID() string
	Peer() string
	Send(data []byte) error
	Close() error
}
