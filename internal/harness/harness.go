package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/peersync/internal/docstore"
	"github.com/roach88/peersync/internal/notify"
	"github.com/roach88/peersync/internal/room"
	"github.com/roach88/peersync/internal/session"
	"github.com/roach88/peersync/internal/store"
	"github.com/roach88/peersync/internal/testutil"
	"github.com/roach88/peersync/internal/transport/memnet"
	"github.com/roach88/peersync/internal/wire"
)

const pollInterval = 5 * time.Millisecond

// Option configures a run.
type Option func(*Harness)

// WithLogger routes coordinator logs; runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithNotices copies every node's notifications to sink, prefixed with the
// node name.
func WithNotices(sink notify.Sink) Option {
	return func(h *Harness) { h.echo = sink }
}

// Harness drives one scenario.
type Harness struct {
	scenario *Scenario
	net      *memnet.Network
	nodes    map[string]*node
	order    []string
	logger   *slog.Logger
	echo     notify.Sink

	mu        sync.Mutex
	endpoints map[string]string // endpoint name -> node name
	frames    []rawFrame
}

type rawFrame struct {
	typ      wire.Type
	from, to string
}

type node struct {
	name    string
	coord   *session.Coordinator
	docs    *docstore.MemoryStore
	records *store.Store
	notices *testutil.Recorder
	cancel  context.CancelFunc
	done    chan struct{}
}

// Run executes a scenario and returns the result.
//
// Each node gets a fresh in-memory SQLite record store. The returned error
// reports a harness failure; scenario failures are in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	cfg, err := scenario.nodeConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	h := &Harness{
		scenario:  scenario,
		net:       memnet.New(),
		nodes:     make(map[string]*node, len(scenario.Nodes)),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		echo:      notify.Discard,
		endpoints: make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.net.SetTap(h.observe)
	defer h.teardown()

	for _, spec := range scenario.Nodes {
		if err := h.startNode(spec, cfg.SessionSettings()); err != nil {
			return nil, fmt.Errorf("start node %s: %w", spec.Name, err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			break
		}
	}

	if result.Pass {
		for _, msg := range h.settle(scenario.Assertions) {
			result.AddError(msg)
		}
	}

	result.Frames = h.resolvedFrames()
	for _, name := range h.order {
		snap, err := h.nodes[name].snapshot()
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", name, err)
		}
		result.Nodes[name] = snap
	}
	return result, nil
}

func (h *Harness) startNode(spec NodeSpec, cfg session.Config) error {
	records, err := store.Open(":memory:")
	if err != nil {
		return err
	}
	if spec.Record != nil {
		code, err := room.Normalize(spec.Record.Code)
		if err != nil {
			records.Close()
			return fmt.Errorf("record: %w", err)
		}
		d := room.Descriptor{Role: room.Role(spec.Record.Role), Code: code}
		if err := records.Save(context.Background(), d); err != nil {
			records.Close()
			return err
		}
	}

	n := &node{
		name:    spec.Name,
		docs:    docstore.NewMemoryStore(spec.Document),
		records: records,
		notices: testutil.NewRecorder(),
		done:    make(chan struct{}),
	}
	sink := notify.Multi{n.notices, notify.SinkFunc(func(msg string, level notify.Level) {
		h.echo.Notify(spec.Name+": "+msg, level)
	})}

	opts := []session.Option{
		session.WithLogger(h.logger.With("node", spec.Name)),
		session.WithStatusListener(func(st session.Status) {
			if st.Endpoint != "" {
				h.mu.Lock()
				h.endpoints[st.Endpoint] = spec.Name
				h.mu.Unlock()
			}
		}),
	}
	if len(spec.Codes) > 0 {
		opts = append(opts, session.WithCodeGenerator(testutil.NewFixedCodes(spec.Codes...)))
	}
	n.coord = session.New(h.net, n.docs, records, sink, cfg, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go func() {
		defer close(n.done)
		_ = n.coord.Run(ctx)
	}()

	h.nodes[spec.Name] = n
	h.order = append(h.order, spec.Name)
	return nil
}

func (h *Harness) teardown() {
	for _, name := range h.order {
		n := h.nodes[name]
		n.cancel()
		<-n.done
		n.records.Close()
	}
}

// observe is the network tap. Heartbeats are not traced.
func (h *Harness) observe(from, to string, data []byte) {
	m, err := wire.Decode(data)
	if err != nil || m.IsHeartbeat() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, rawFrame{typ: m.Type, from: from, to: to})
}

func (h *Harness) resolvedFrames() []FrameEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]FrameEvent, 0, len(h.frames))
	for _, f := range h.frames {
		out = append(out, FrameEvent{Type: string(f.typ), From: h.nodeName(f.from), To: h.nodeName(f.to)})
	}
	return out
}

// nodeName resolves an endpoint name. Callers hold h.mu.
func (h *Harness) nodeName(endpoint string) string {
	if name, ok := h.endpoints[endpoint]; ok {
		return name
	}
	return endpoint
}

func (h *Harness) execute(step Step) error {
	switch {
	case step.Sleep > 0:
		time.Sleep(step.Sleep)
		return nil
	case step.Wait != nil:
		return h.wait(*step.Wait)
	}

	switch step.Action {
	case ActionOutage:
		h.net.SetOutage(true)
		return nil
	case ActionRestore:
		h.net.SetOutage(false)
		return nil
	}

	n := h.nodes[step.Node]
	err := n.act(h, step)
	switch {
	case step.ExpectError && err == nil:
		return fmt.Errorf("%s %s: expected an error", step.Node, step.Action)
	case !step.ExpectError && err != nil:
		return fmt.Errorf("%s %s: %w", step.Node, step.Action, err)
	}
	return nil
}

func (n *node) act(h *Harness, step Step) error {
	c := n.coord
	switch step.Action {
	case ActionHost:
		_, err := c.StartHost(step.Code)
		return err
	case ActionJoin:
		return c.JoinRoom(step.Code)
	case ActionResume:
		return c.Resume()
	case ActionStop:
		return c.StopSync()
	case ActionShutdown:
		c.Shutdown()
		<-n.done
		return nil
	case ActionUpdate:
		// Edits land in the local document first; the full snapshot is sent.
		if err := n.docs.ApplyRemote(wire.Document(step.Document), false); err != nil {
			return err
		}
		doc, err := n.docs.Snapshot()
		if err != nil {
			return err
		}
		return c.SendUpdate(doc)
	case ActionLock:
		return c.SetLock(true)
	case ActionUnlock:
		return c.SetLock(false)
	case ActionSilence, ActionUnsilence:
		ep := c.Status().Endpoint
		if ep == "" {
			return fmt.Errorf("node has no endpoint")
		}
		h.net.Silence(ep, step.Action == ActionSilence)
		return nil
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

func (h *Harness) wait(cond Condition) error {
	n := h.nodes[cond.Node]
	deadline := time.Now().Add(h.scenario.settle())
	for {
		miss := n.unmet(cond)
		if miss == "" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait %s: %s", cond.Node, miss)
		}
		time.Sleep(pollInterval)
	}
}

// unmet describes the first unmet part of cond, or returns "".
func (n *node) unmet(cond Condition) string {
	st := n.coord.Status()
	if cond.State != "" && st.State.String() != cond.State {
		return fmt.Sprintf("state is %s, want %s", st.State, cond.State)
	}
	if cond.Participants != nil && st.Participants != *cond.Participants {
		return fmt.Sprintf("%d participants, want %d", st.Participants, *cond.Participants)
	}
	if cond.Locked != nil && st.Locked != *cond.Locked {
		return fmt.Sprintf("locked is %t, want %t", st.Locked, *cond.Locked)
	}
	if cond.Notice != "" && !n.notices.Has(cond.Notice) {
		return fmt.Sprintf("no notice containing %q", cond.Notice)
	}
	if cond.Document != nil {
		doc, err := n.docs.Snapshot()
		if err != nil {
			return err.Error()
		}
		if !sameDocument(doc, cond.Document) {
			return fmt.Sprintf("document is %s, want %s", formatDocument(doc), formatDocument(cond.Document))
		}
	}
	return ""
}

// settle polls the assertions until they all pass or the settle time ends,
// and returns the failures of the last round.
func (h *Harness) settle(assertions []Assertion) []string {
	deadline := time.Now().Add(h.scenario.settle())
	for {
		failures := h.evaluate(assertions)
		if len(failures) == 0 || time.Now().After(deadline) {
			return failures
		}
		time.Sleep(pollInterval)
	}
}

func (h *Harness) evaluate(assertions []Assertion) []string {
	view := &View{Frames: h.resolvedFrames(), Nodes: make(map[string]NodeSnapshot, len(h.nodes))}
	for _, name := range h.order {
		snap, err := h.nodes[name].snapshot()
		if err != nil {
			return []string{fmt.Sprintf("snapshot %s: %v", name, err)}
		}
		view.Nodes[name] = snap
	}
	return EvaluateAssertions(view, assertions)
}

func (n *node) snapshot() (NodeSnapshot, error) {
	st := n.coord.Status()
	doc, err := n.docs.Snapshot()
	if err != nil {
		return NodeSnapshot{}, err
	}
	snap := NodeSnapshot{
		State:        st.State.String(),
		Code:         st.Code,
		Participants: st.Participants,
		Locked:       st.Locked,
		Document:     map[string]string(doc),
		Notices:      []string{},
	}
	if snap.Document == nil {
		snap.Document = map[string]string{}
	}

	d, found, err := n.records.Load(context.Background())
	if err != nil {
		return NodeSnapshot{}, err
	}
	if found {
		snap.Record = string(d.Role) + ":" + d.Code
	}

	for _, notice := range n.notices.Notices() {
		snap.Notices = append(snap.Notices, notice.Message)
	}
	return snap, nil
}

// Names returns the scenario's node names in a stable order.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Nodes))
	for name := range r.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary renders the errors for display.
func (r *Result) Summary() string {
	if r.Pass {
		return "PASS"
	}
	return "FAIL\n  " + strings.Join(r.Errors, "\n  ")
}
