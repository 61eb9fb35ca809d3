package wire

import "maps"

// Type tags a frame.
type Type string

const (
	TypeUpdate       Type = "UPDATE"
	TypeFullSync     Type = "FULL_SYNC"
	TypeHeartbeat    Type = "HEARTBEAT"
	TypeHeartbeatAck Type = "HEARTBEAT_ACK"
	TypeLock         Type = "LOCK"
)

// Known reports whether t is one of the five frame tags.
func (t Type) Known() bool {
	switch t {
	case TypeUpdate, TypeFullSync, TypeHeartbeat, TypeHeartbeatAck, TypeLock:
		return true
	}
	return false
}

// Document is the shared key-value document (assessment answers).
type Document map[string]string

// Clone returns a shallow copy. A nil document clones to an empty one.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	maps.Copy(out, d)
	return out
}

// Merge overwrites d's keys with other's. Last writer wins per key; there is
// no per-key causality tracking.
func (d Document) Merge(other Document) {
	maps.Copy(d, other)
}

// Message is the decoded form of a frame.
//
// Doc is set for Update and FullSync, Locked for Lock.
type Message struct {
	Type   Type
	Doc    Document
	Locked bool
}

// Update builds an incremental merge message.
func Update(doc Document) Message {
	return Message{Type: TypeUpdate, Doc: doc}
}

// FullSync builds the authoritative replacement sent to a newly opened client link.
func FullSync(doc Document) Message {
	return Message{Type: TypeFullSync, Doc: doc}
}

// Heartbeat builds a liveness probe.
func Heartbeat() Message {
	return Message{Type: TypeHeartbeat}
}

// HeartbeatAck builds the reply to a probe.
func HeartbeatAck() Message {
	return Message{Type: TypeHeartbeatAck}
}

// Lock builds the host's lock directive.
func Lock(locked bool) Message {
	return Message{Type: TypeLock, Locked: locked}
}

// IsHeartbeat reports whether m is a probe or a probe reply.
func (m Message) IsHeartbeat() bool {
	return m.Type == TypeHeartbeat || m.Type == TypeHeartbeatAck
}
