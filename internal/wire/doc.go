// Package wire defines the frames exchanged between peers and the validator
// that guards every inbound frame.
//
// A frame is a JSON object:
//
//	{"type": "UPDATE", "payload": {"1.1.1": "Mature"}}
//
// Tags are UPDATE, FULL_SYNC, HEARTBEAT, HEARTBEAT_ACK and LOCK. Heartbeat
// frames carry no payload; every other frame must carry a non-null object.
// Document keys and values are NFC normalized on both sides of the codec so
// the same answer typed on different platforms merges onto the same key.
//
// Decode never panics and never partially applies anything. A frame that
// fails validation is reported as ErrRejected and must be dropped by the
// caller without telling the sender.
package wire
