package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/peersync/internal/heartbeat"
	"github.com/roach88/peersync/internal/notify"
	"github.com/roach88/peersync/internal/pending"
	"github.com/roach88/peersync/internal/reconnect"
	"github.com/roach88/peersync/internal/registry"
	"github.com/roach88/peersync/internal/room"
	"github.com/roach88/peersync/internal/transport"
	"github.com/roach88/peersync/internal/wire"
)

type eventKind int

const (
	evStartHost eventKind = iota + 1
	evJoinRoom
	evResume
	evStop
	evSendUpdate
	evSetLock
	evTransport
	evHeartbeatTick
	evRetry
	evOpenTimeout
)

func (k eventKind) String() string {
	switch k {
	case evStartHost:
		return "start_host"
	case evJoinRoom:
		return "join_room"
	case evResume:
		return "resume"
	case evStop:
		return "stop"
	case evSendUpdate:
		return "send_update"
	case evSetLock:
		return "set_lock"
	case evTransport:
		return "transport"
	case evHeartbeatTick:
		return "heartbeat_tick"
	case evRetry:
		return "retry"
	case evOpenTimeout:
		return "open_timeout"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// event is one unit of work for the Run loop.
type event struct {
	kind      eventKind
	code      string
	doc       wire.Document
	locked    bool
	epoch     uint64
	gen       uint64
	transport transport.Event
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCodeGenerator sets the source of room codes for StartHost("").
func WithCodeGenerator(g room.CodeGenerator) Option {
	return func(c *Coordinator) { c.codes = g }
}

// WithStatusListener registers fn to receive every status change. fn runs on
// the coordinator goroutine and must not block or call back into the
// coordinator synchronously.
func WithStatusListener(fn func(Status)) Option {
	return func(c *Coordinator) { c.listener = fn }
}

// WithClock overrides the clock used for link liveness.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// Coordinator owns one node's participation in a sync session.
//
// Construct with New, run the loop with Run in exactly one goroutine, and
// drive it with StartHost, JoinRoom, Resume, SendUpdate, SetLock and
// StopSync. None of those block on the network.
type Coordinator struct {
	provider transport.Provider
	docs     DocumentStore
	records  RecordStore
	sink     notify.Sink
	cfg      Config
	codes    room.CodeGenerator
	now      func() time.Time
	logger   *slog.Logger
	listener func(Status)

	queue *eventQueue

	// Loop-owned state. Only touched from Run.
	ctx       context.Context
	state     State
	desc      room.Descriptor
	resumed   bool
	failed    bool
	locked    bool
	epoch     uint64
	endpoint  transport.Endpoint
	hostLink  string
	openTimer *time.Timer
	links     *registry.Registry
	pending   *pending.Queue
	monitor   *heartbeat.Monitor
	retries   *reconnect.Manager

	// awaitingSync holds a client's local snapshots back until the host's
	// first FullSync has replaced the document.
	awaitingSync bool

	statusMu sync.Mutex
	status   Status
}

// New creates an idle coordinator. Zero fields in cfg take the defaults;
// a nil sink discards notifications.
func New(
	provider transport.Provider,
	docs DocumentStore,
	records RecordStore,
	sink notify.Sink,
	cfg Config,
	opts ...Option,
) *Coordinator {
	def := DefaultConfig()
	if cfg.HostPrefix == "" {
		cfg.HostPrefix = def.HostPrefix
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if sink == nil {
		sink = notify.Discard
	}

	c := &Coordinator{
		provider: provider,
		docs:     docs,
		records:  records,
		sink:     sink,
		cfg:      cfg,
		codes:    room.RandomGenerator{},
		now:      time.Now,
		logger:   slog.Default(),
		queue:    newEventQueue(),
		ctx:      context.Background(),
		links:    registry.New(),
		pending:  pending.New(pending.WithCoalesce(cfg.CoalescePending)),
		retries:  reconnect.New(cfg.Reconnect),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.monitor = heartbeat.New(cfg.Heartbeat,
		heartbeat.WithNow(c.now),
		heartbeat.WithLogger(c.logger))
	return c
}

func (c *Coordinator) enqueue(e event) error {
	if !c.queue.Enqueue(e) {
		return ErrClosed
	}
	return nil
}

// StartHost hosts a room. An empty code draws a fresh one; the code in use is
// returned. Ignored with a notification unless the coordinator is idle.
func (c *Coordinator) StartHost(code string) (string, error) {
	if code == "" {
		code = c.codes.Generate()
	}
	code, err := room.Normalize(code)
	if err != nil {
		return "", err
	}
	return code, c.enqueue(event{kind: evStartHost, code: code})
}

// JoinRoom joins the room hosted under code. Codes are case-insensitive. An
// invalid code is reported to the sink and returned.
func (c *Coordinator) JoinRoom(code string) error {
	normalized, err := room.Normalize(code)
	if err != nil {
		c.sink.Notify("Please enter a valid room code.", notify.Error)
		return err
	}
	return c.enqueue(event{kind: evJoinRoom, code: normalized})
}

// Resume restores the persisted session: a host record is re-hosted with its
// code, a client record is discarded.
func (c *Coordinator) Resume() error {
	return c.enqueue(event{kind: evResume})
}

// StopSync leaves the session from any state and forgets it. Idempotent.
func (c *Coordinator) StopSync() error {
	return c.enqueue(event{kind: evStop})
}

// SendUpdate broadcasts doc to every open link, or queues it until one
// opens.
func (c *Coordinator) SendUpdate(doc wire.Document) error {
	return c.enqueue(event{kind: evSendUpdate, doc: doc.Clone()})
}

// SetLock relays the lock directive to every client. Host only.
func (c *Coordinator) SetLock(locked bool) error {
	return c.enqueue(event{kind: evSetLock, locked: locked})
}

// Status returns the latest status snapshot.
func (c *Coordinator) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// Shutdown closes the event queue, which makes Run return. The persisted
// session record is kept so the next process can Resume.
func (c *Coordinator) Shutdown() {
	c.queue.Close()
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Shutdown is called.
//
// Must be called from exactly one goroutine. Event handling failures are
// logged and processing continues.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	c.logger.Info("session coordinator starting")
	defer c.exit()

	for {
		ev, ok := c.queue.TryDequeue()
		if ok {
			c.processEvent(ev)
			c.publishStatus()
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("session coordinator stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel is closed along with the queue. A buffered
			// signal with an empty, open queue only means a drained event.
			if c.queue.Closed() && c.queue.Len() == 0 {
				c.logger.Info("session coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// exit releases the transport without clearing the persisted record.
func (c *Coordinator) exit() {
	c.retries.Cancel()
	c.closeTransport()
	c.epoch++
	c.state = StateIdle
	c.desc = room.Descriptor{}
	c.publishStatus()
}

func (c *Coordinator) publishStatus() {
	st := Status{
		State:      c.state,
		Role:       c.desc.Role,
		Code:       c.desc.Code,
		Connecting: c.state == StateConnecting,
		Error:      c.failed,
		Locked:     c.locked,
	}
	if c.state != StateIdle {
		st.Participants = c.links.Count() + 1
	}
	if c.endpoint != nil {
		st.Endpoint = c.endpoint.Name()
	}

	c.statusMu.Lock()
	changed := st != c.status
	c.status = st
	c.statusMu.Unlock()

	if changed && c.listener != nil {
		c.listener(st)
	}
}
