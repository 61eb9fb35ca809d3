// Package room defines session roles, room codes and the persisted session
// descriptor shared by the coordinator and its record stores.
package room

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the part a node plays in the star topology.
type Role string

const (
	// RoleHost is the hub that relays updates between clients.
	RoleHost Role = "host"
	// RoleClient holds exactly one link, to the host.
	RoleClient Role = "client"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleClient
}

// Descriptor is the small record persisted so a session can resume after a
// process restart. Only host descriptors are ever resumed.
type Descriptor struct {
	Role Role   `json:"role"`
	Code string `json:"code"`
}

const (
	// CodeLength is the length of generated room codes.
	CodeLength = 6

	// MinCodeLength is the shortest code accepted from a user.
	MinCodeLength = 4

	// MaxCodeLength bounds user input; generated codes are always CodeLength.
	MaxCodeLength = 16

	// DefaultHostPrefix namespaces host endpoint names.
	DefaultHostPrefix = "peersync-host-"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ErrInvalidCode is returned for empty, short or non base-36 room codes.
var ErrInvalidCode = errors.New("invalid room code")

// CodeGenerator produces fresh room codes for new host sessions.
type CodeGenerator interface {
	Generate() string
}

// RandomGenerator draws CodeLength base-36 characters.
//
// Thread-safety: stateless, safe for concurrent use.
type RandomGenerator struct{}

// Generate returns a new upper-case room code.
func (RandomGenerator) Generate() string {
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// Normalize trims and upper-cases a user-supplied code and checks that it is
// made of base-36 characters within the accepted length range.
//
// Codes are matched case-insensitively: "ab12cd" and "AB12CD" address the same host.
func Normalize(code string) (string, error) {
	// cases.Caser is stateful, so one is built per call.
	c := cases.Upper(language.Und).String(strings.TrimSpace(code))
	if len(c) < MinCodeLength || len(c) > MaxCodeLength {
		return "", fmt.Errorf("%w: %q must be %d-%d characters", ErrInvalidCode, code, MinCodeLength, MaxCodeLength)
	}
	for _, r := range c {
		if !strings.ContainsRune(alphabet, r) {
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidCode, code, r)
		}
	}
	return c, nil
}

// HostName derives the well-known endpoint name for a room, so a client that
// knows the code can address the host without a directory lookup.
func HostName(prefix, code string) string {
	return prefix + code
}
