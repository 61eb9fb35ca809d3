// Package heartbeat keeps peer links honest: it probes every open link on a
// fixed interval, answers probes from peers and, on the host, reports links
// that have gone quiet for longer than the timeout.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/peersync/internal/registry"
	"github.com/roach88/peersync/internal/wire"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 12 * time.Second
)

// Config controls probe cadence and eviction.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultConfig returns the 5s probe / 12s eviction policy.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Timeout: DefaultTimeout}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNow overrides the clock used for eviction decisions.
func WithNow(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLogger sets the logger for send failures and evictions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// Monitor drives heartbeats for one node.
//
// The ticker only calls onTick; the owner decides when to call Tick so that
// link mutations stay on the owner's goroutine.
//
// Thread-safety: Start, Stop and Running are safe for concurrent use. Tick
// and Observe touch links, which carry their own locks.
type Monitor struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped monitor. Zero fields in cfg take the defaults.
func New(cfg Config, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	m := &Monitor{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config { return m.cfg }

// Start begins ticking; onTick is called once per interval from the ticker
// goroutine and must not block. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context, onTick func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				onTick()
			}
		}
	}()
}

// Stop halts the ticker and waits for its goroutine. Safe to call when
// stopped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

// Running reports whether the ticker is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Tick runs one heartbeat round over links. With evict set, links idle for
// longer than the timeout are returned instead of probed; the caller removes
// them. A link that never opened counts as idle since it was registered.
// Unopened links are not probed.
func (m *Monitor) Tick(links []*registry.PeerLink, evict bool) []*registry.PeerLink {
	now := m.now()

	var expired []*registry.PeerLink
	for _, l := range links {
		if evict && now.Sub(l.LastSeen()) > m.cfg.Timeout {
			m.logger.Debug("heartbeat timeout",
				"link", l.ID(),
				"peer", l.Peer(),
				"open", l.IsOpen(),
				"idle", now.Sub(l.LastSeen()))
			expired = append(expired, l)
			continue
		}
		if !l.IsOpen() {
			continue
		}
		if err := l.Send(wire.Heartbeat()); err != nil {
			m.logger.Debug("heartbeat send failed", "link", l.ID(), "error", err)
		}
	}
	return expired
}

// Observe handles a heartbeat frame received on link, replying to probes.
// It reports whether msg was a heartbeat frame; other frames are left to the
// caller. The caller is expected to have touched the link already.
func (m *Monitor) Observe(link *registry.PeerLink, msg wire.Message) bool {
	switch msg.Type {
	case wire.TypeHeartbeat:
		if err := link.Send(wire.HeartbeatAck()); err != nil {
			m.logger.Debug("heartbeat ack failed", "link", link.ID(), "error", err)
		}
		return true
	case wire.TypeHeartbeatAck:
		return true
	default:
		return false
	}
}
