package testutil

import "sync"

// FixedCodes returns predetermined room codes in order.
//
// This enables deterministic host sessions: a scenario that starts a host
// knows the code its clients must join.
//
// Thread-safety: FixedCodes is safe for concurrent use via internal mutex.
type FixedCodes struct {
	mu    sync.Mutex
	codes []string
	idx   int
}

// NewFixedCodes creates a generator that returns codes in order.
func NewFixedCodes(codes ...string) *FixedCodes {
	return &FixedCodes{codes: codes}
}

// Generate returns the next predetermined code.
//
// Panics if all codes have been consumed; a test that hosts more sessions
// than it planned for is misconfigured.
func (g *FixedCodes) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.codes) {
		panic("FixedCodes: all codes exhausted")
	}
	code := g.codes[g.idx]
	g.idx++
	return code
}
