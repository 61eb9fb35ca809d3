// Package reconnect schedules bounded, exponentially spaced retries for a
// session that lost (or never reached) its peer.
package reconnect

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	DefaultBase        = 1 * time.Second
	DefaultMax         = 15 * time.Second
	DefaultMaxAttempts = 5
)

// Config bounds the retry policy: delay = min(Base·2^attempt, Max), at most
// MaxAttempts retries per failure streak.
type Config struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultConfig returns the 1s/15s/5 policy.
func DefaultConfig() Config {
	return Config{Base: DefaultBase, Max: DefaultMax, MaxAttempts: DefaultMaxAttempts}
}

// Manager owns the retry counter and the single pending retry timer.
//
// Every scheduled retry gets a generation number. A timer that fires after
// it was cancelled or superseded carries a stale generation, and Claim
// rejects it; this is how retries are cancelled without racing the timer.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	policy  backoff.BackOff
	attempt int
	gen     uint64
	timer   *time.Timer
}

// New creates a manager. Zero fields in cfg take the defaults.
func New(cfg Config) *Manager {
	if cfg.Base <= 0 {
		cfg.Base = DefaultBase
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Manager{cfg: cfg, policy: newPolicy(cfg)}
}

func newPolicy(cfg Config) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.Base
	exp.MaxInterval = cfg.Max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts))
}

// ScheduleRetry arms the retry timer; fire receives the generation to Claim.
// Any previously pending timer is replaced. It returns the 1-based attempt
// number and its delay, or ok=false when the attempts are exhausted, in which
// case nothing is scheduled.
func (m *Manager) ScheduleRetry(fire func(gen uint64)) (attempt int, delay time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimerLocked()

	delay = m.policy.NextBackOff()
	if delay == backoff.Stop {
		return m.attempt, 0, false
	}
	m.attempt++
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(delay, func() { fire(gen) })
	return m.attempt, delay, true
}

// Claim reports whether gen is the current pending retry and consumes it.
// A stale or already-claimed generation returns false.
func (m *Manager) Claim(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer == nil || gen != m.gen {
		return false
	}
	m.timer = nil
	return true
}

// Pending reports whether a retry is scheduled and not yet claimed.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Attempt returns the number of retries scheduled in the current streak.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Reset starts a new failure streak after a successful connection.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt = 0
	m.policy.Reset()
}

// Cancel stops any pending retry and resets the streak.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.attempt = 0
	m.policy.Reset()
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	// Invalidate a timer that already fired but has not been claimed.
	m.gen++
}
