package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/peersync/internal/docstore"
	"github.com/roach88/peersync/internal/heartbeat"
	"github.com/roach88/peersync/internal/reconnect"
	"github.com/roach88/peersync/internal/testutil"
	"github.com/roach88/peersync/internal/transport"
	"github.com/roach88/peersync/internal/transport/memnet"
	"github.com/roach88/peersync/internal/wire"
)

const (
	waitFor = 3 * time.Second
	tick    = 2 * time.Millisecond
)

// testConfig never probes during a test and retries quickly.
func testConfig() Config {
	return Config{
		HostPrefix:  "peersync-host-",
		OpenTimeout: 2 * time.Second,
		Heartbeat:   heartbeat.Config{Interval: time.Hour, Timeout: 2 * time.Hour},
		Reconnect:   reconnect.Config{Base: 5 * time.Millisecond, Max: 20 * time.Millisecond, MaxAttempts: 5},
	}
}

type node struct {
	c       *Coordinator
	docs    *docstore.MemoryStore
	records *testutil.RecordStore
	notes   *testutil.Recorder
	done    chan error
}

func startNode(t *testing.T, net *memnet.Network, cfg Config, initial wire.Document, opts ...Option) *node {
	t.Helper()
	n := &node{
		docs:    docstore.NewMemoryStore(initial),
		records: testutil.NewRecordStore(),
		notes:   testutil.NewRecorder(),
		done:    make(chan error, 1),
	}
	n.c = New(net, n.docs, n.records, n.notes, cfg, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { n.done <- n.c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-n.done:
		case <-time.After(waitFor):
			t.Error("coordinator did not stop")
		}
	})
	return n
}

func (n *node) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return n.c.Status().State == want },
		waitFor, tick, "want state %s, have %+v", want, n.c.Status())
}

func (n *node) waitStatus(t *testing.T, cond func(Status) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(n.c.Status()) }, waitFor, tick,
		"%s: have %+v", msg, n.c.Status())
}

func (n *node) waitParticipants(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return n.c.Status().Participants == want },
		waitFor, tick, "want %d participants, have %+v", want, n.c.Status())
}

func (n *node) waitDoc(t *testing.T, want wire.Document) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := n.docs.Snapshot()
		return err == nil && equalDocs(got, want)
	}, waitFor, tick)
}

func (n *node) doc(t *testing.T) wire.Document {
	t.Helper()
	d, err := n.docs.Snapshot()
	require.NoError(t, err)
	return d
}

func equalDocs(a, b wire.Document) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

type frame struct {
	from, to string
	msg      wire.Message
}

// frameLog records every decodable frame crossing the network.
type frameLog struct {
	mu     sync.Mutex
	frames []frame
}

func tapFrames(net *memnet.Network) *frameLog {
	f := &frameLog{}
	net.SetTap(func(from, to string, data []byte) {
		m, err := wire.Decode(data)
		if err != nil {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.frames = append(f.frames, frame{from: from, to: to, msg: m})
	})
	return f
}

// matching returns frames of type typ; empty from or to match anything.
func (f *frameLog) matching(typ wire.Type, from, to string) []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []frame
	for _, fr := range f.frames {
		if fr.msg.Type != typ {
			continue
		}
		if (from == "" || fr.from == from) && (to == "" || fr.to == to) {
			out = append(out, fr)
		}
	}
	return out
}

func (f *frameLog) count(typ wire.Type, from, to string) int {
	return len(f.matching(typ, from, to))
}

func (f *frameLog) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// rawPeer is a bare transport endpoint used to feed a host arbitrary frames.
type rawPeer struct {
	ep   transport.Endpoint
	link transport.Link

	mu     sync.Mutex
	events []transport.Event
}

func dialRaw(t *testing.T, net *memnet.Network, hostName string) *rawPeer {
	t.Helper()
	p := &rawPeer{}
	ep, err := net.CreateEndpoint("", func(ev transport.Event) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.events = append(p.events, ev)
	})
	require.NoError(t, err)
	p.ep = ep
	p.link, err = ep.ConnectTo(hostName)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ep.Close() })
	return p
}

func (p *rawPeer) send(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, p.link.Send([]byte(raw)))
}

// received returns the decoded frames the peer got so far.
func (p *rawPeer) received() []wire.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []wire.Message
	for _, ev := range p.events {
		if ev.Kind != transport.EventLinkData {
			continue
		}
		if m, err := wire.Decode(ev.Data); err == nil {
			out = append(out, m)
		}
	}
	return out
}
