package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// ErrRejected marks a frame that failed validation.
var ErrRejected = errors.New("frame rejected")

type frame struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type lockPayload struct {
	Locked *bool `json:"locked"`
}

// Encode serializes m into a frame. Heartbeat frames omit the payload.
func Encode(m Message) ([]byte, error) {
	if !m.Type.Known() {
		return nil, fmt.Errorf("encode: unknown message type %q", m.Type)
	}

	f := frame{Type: m.Type}
	switch m.Type {
	case TypeUpdate, TypeFullSync:
		payload, err := marshal(normalize(m.Doc))
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Type, err)
		}
		f.Payload = payload
	case TypeLock:
		locked := m.Locked
		payload, err := marshal(lockPayload{Locked: &locked})
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Type, err)
		}
		f.Payload = payload
	}
	return marshal(f)
}

// Decode validates raw and returns the message it carries. Every failure
// wraps ErrRejected.
func Decode(raw []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Message{}, reject("not a frame object: %v", err)
	}
	if !f.Type.Known() {
		return Message{}, reject("unknown type %q", f.Type)
	}

	if f.Type == TypeHeartbeat || f.Type == TypeHeartbeatAck {
		return Message{Type: f.Type}, nil
	}

	payload := bytes.TrimSpace(f.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return Message{}, reject("%s without payload", f.Type)
	}
	if payload[0] != '{' {
		return Message{}, reject("%s payload is not an object", f.Type)
	}

	switch f.Type {
	case TypeLock:
		var lp lockPayload
		if err := json.Unmarshal(payload, &lp); err != nil {
			return Message{}, reject("%s payload: %v", f.Type, err)
		}
		if lp.Locked == nil {
			return Message{}, reject("%s payload missing locked flag", f.Type)
		}
		return Lock(*lp.Locked), nil
	default:
		var doc Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			return Message{}, reject("%s payload: %v", f.Type, err)
		}
		return Message{Type: f.Type, Doc: normalize(doc)}, nil
	}
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// normalize returns an NFC-normalized copy. Never nil, so an empty document
// still encodes as an object.
func normalize(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[norm.NFC.String(k)] = norm.NFC.String(v)
	}
	return out
}

// marshal encodes without HTML escaping; answers are free text and travel
// between peers, never into a page.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
