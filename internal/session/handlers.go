package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/peersync/internal/notify"
	"github.com/roach88/peersync/internal/registry"
	"github.com/roach88/peersync/internal/room"
	"github.com/roach88/peersync/internal/transport"
	"github.com/roach88/peersync/internal/wire"
)

// processEvent routes an event to its handler.
// Called only from the Run goroutine.
func (c *Coordinator) processEvent(ev event) {
	switch ev.kind {
	case evStartHost:
		c.startHost(ev.code)
	case evJoinRoom:
		c.joinRoom(ev.code)
	case evResume:
		c.resume()
	case evStop:
		c.stop()
	case evSendUpdate:
		c.dispatch(ev.doc)
	case evSetLock:
		c.setLock(ev.locked)
	case evTransport:
		if ev.epoch != c.epoch {
			c.logger.Debug("dropping stale transport event",
				"kind", ev.transport.Kind, "epoch", ev.epoch, "current", c.epoch)
			return
		}
		c.handleTransport(ev.transport)
	case evHeartbeatTick:
		if ev.epoch == c.epoch {
			c.heartbeatTick()
		}
	case evRetry:
		if !c.retries.Claim(ev.gen) || c.desc.Role == "" {
			return
		}
		c.logger.Info("retrying session", "role", c.desc.Role, "code", c.desc.Code,
			"attempt", c.retries.Attempt())
		c.establish()
	case evOpenTimeout:
		if ev.epoch == c.epoch && c.state == StateConnecting {
			c.sink.Notify("Connection timed out.", notify.Error)
			c.failAttempt(errOpenTimeout)
		}
	default:
		c.logger.Error("unknown event", "kind", ev.kind)
	}
}

func (c *Coordinator) busy() bool {
	if c.state == StateIdle {
		return false
	}
	c.sink.Notify(fmt.Sprintf("Already in session %s. Stop it first.", c.desc.Code), notify.Error)
	return true
}

func (c *Coordinator) startHost(code string) {
	if c.busy() {
		return
	}
	c.desc = room.Descriptor{Role: room.RoleHost, Code: code}
	c.resumed = false
	c.failed = false
	c.retries.Reset()
	c.sink.Notify("Starting host session...", notify.Info)
	c.establish()
}

func (c *Coordinator) joinRoom(code string) {
	if c.busy() {
		return
	}
	// A joining node inherits the host's document; nothing local may leak in.
	if n := c.pending.Discard(); n > 0 {
		c.logger.Debug("discarded pending updates before join", "count", n)
	}
	if err := c.docs.ApplyRemote(wire.Document{}, true); err != nil {
		c.logger.Warn("clear local document failed", "error", err)
	}
	c.desc = room.Descriptor{Role: room.RoleClient, Code: code}
	c.failed = false
	c.locked = false
	c.retries.Reset()
	c.establish()
}

func (c *Coordinator) resume() {
	if c.state != StateIdle {
		c.logger.Debug("resume ignored: session active", "state", c.state)
		return
	}
	d, found, err := c.records.Load(c.ctx)
	if err != nil {
		c.logger.Warn("load session record failed", "error", err)
		c.sink.Notify("Could not restore session.", notify.Error)
		return
	}
	if !found {
		c.logger.Debug("no session to resume")
		return
	}

	switch d.Role {
	case room.RoleHost:
		c.sink.Notify(fmt.Sprintf("Reconnecting to session %s...", d.Code), notify.Info)
		c.desc = d
		c.resumed = true
		c.failed = false
		c.retries.Reset()
		c.establish()
	default:
		// Rejoining automatically could push a stale document into a live session.
		c.clearRecord()
		c.sink.Notify(fmt.Sprintf("Not rejoining session %s automatically. Join it again to continue.", d.Code),
			notify.Info)
	}
}

func (c *Coordinator) stop() {
	wasActive := c.state != StateIdle
	c.retries.Cancel()
	c.closeTransport()
	c.epoch++
	c.clearRecord()
	c.state = StateIdle
	c.desc = room.Descriptor{}
	c.failed = false
	c.locked = false
	c.resumed = false
	if wasActive {
		c.logger.Info("session stopped")
	}
}

// establish starts one attempt for the current descriptor in a new epoch.
func (c *Coordinator) establish() {
	c.closeTransport()
	c.epoch++
	epoch := c.epoch
	c.state = StateConnecting

	name := ""
	if c.desc.Role == room.RoleHost {
		name = room.HostName(c.cfg.HostPrefix, c.desc.Code)
	}

	c.openTimer = time.AfterFunc(c.cfg.OpenTimeout, func() {
		c.queue.Enqueue(event{kind: evOpenTimeout, epoch: epoch})
	})

	handler := func(te transport.Event) {
		c.queue.Enqueue(event{kind: evTransport, epoch: epoch, transport: te})
	}
	ep, err := c.provider.CreateEndpoint(name, handler)
	if err != nil {
		c.endpointFailed(err)
		return
	}
	c.endpoint = ep
	c.logger.Debug("endpoint requested", "role", c.desc.Role, "name", ep.Name(), "epoch", epoch)
}

func (c *Coordinator) handleTransport(te transport.Event) {
	switch te.Kind {
	case transport.EventEndpointOpen:
		c.endpointOpened()
	case transport.EventEndpointError:
		c.endpointFailed(te.Err)
	case transport.EventIncoming:
		c.incoming(te.Link)
	case transport.EventLinkOpen:
		c.linkOpened(te.Link)
	case transport.EventLinkData:
		c.linkData(te.Link, te.Data)
	case transport.EventLinkClosed, transport.EventLinkError:
		c.linkLost(te.Link, te.Err)
	}
}

func (c *Coordinator) endpointOpened() {
	if c.desc.Role == room.RoleHost {
		c.becomeHost()
		return
	}
	if c.endpoint == nil {
		return
	}
	target := room.HostName(c.cfg.HostPrefix, c.desc.Code)
	l, err := c.endpoint.ConnectTo(target)
	if err != nil {
		c.failAttempt(err)
		return
	}
	c.hostLink = l.ID()
	c.logger.Debug("dialing host", "peer", target, "link", l.ID())
}

func (c *Coordinator) endpointFailed(err error) {
	if c.desc.Role == room.RoleHost && errors.Is(err, transport.ErrNameTaken) {
		c.logger.Warn("room code collision", "code", c.desc.Code, "error", err)
		c.retries.Cancel()
		c.closeTransport()
		c.epoch++
		c.clearRecord()
		c.state = StateIdle
		c.desc = room.Descriptor{}
		c.failed = true
		c.sink.Notify("Session code conflict. Please host a new session.", notify.Error)
		return
	}
	c.failAttempt(err)
}

func (c *Coordinator) becomeHost() {
	c.stopOpenTimer()
	c.state = StateHost
	c.failed = false
	c.retries.Reset()
	c.saveRecord()

	if c.resumed {
		c.sink.Notify(fmt.Sprintf("Session restored: %s", c.desc.Code), notify.Success)
	} else {
		c.sink.Notify(fmt.Sprintf("Host session started: %s", c.desc.Code), notify.Success)
	}
	c.logger.Info("hosting session", "code", c.desc.Code)

	c.startHeartbeat()
	c.flushPending()
}

func (c *Coordinator) becomeClient(l *registry.PeerLink) {
	c.stopOpenTimer()
	c.state = StateClient
	c.failed = false
	c.retries.Reset()
	c.saveRecord()

	c.sink.Notify(fmt.Sprintf("Successfully joined session: %s", c.desc.Code), notify.Success)
	c.logger.Info("joined session", "code", c.desc.Code, "link", l.ID())

	c.startHeartbeat()
	c.awaitingSync = true
}

func (c *Coordinator) incoming(conn transport.Link) {
	if c.state != StateHost {
		_ = conn.Close()
		return
	}
	c.links.Register(registry.NewPeerLink(conn, c.now()))
	c.sink.Notify("A contributor joined your session.", notify.Info)
	c.logger.Debug("peer connected", "link", conn.ID(), "peer", conn.Peer())
}

func (c *Coordinator) linkOpened(conn transport.Link) {
	switch c.state {
	case StateHost:
		l, ok := c.links.Get(conn.ID())
		if !ok {
			return
		}
		l.MarkOpen(c.now())
		c.flushPending()

		snapshot, err := c.docs.Snapshot()
		if err != nil {
			c.logger.Error("snapshot for full sync failed", "error", err)
			return
		}
		if err := l.Send(wire.FullSync(snapshot)); err != nil {
			c.logger.Warn("full sync failed", "link", l.ID(), "error", err)
		}
		if c.locked {
			if err := l.Send(wire.Lock(true)); err != nil {
				c.logger.Warn("lock relay failed", "link", l.ID(), "error", err)
			}
		}

	case StateConnecting:
		if c.desc.Role != room.RoleClient || conn.ID() != c.hostLink {
			return
		}
		l := registry.NewPeerLink(conn, c.now())
		l.MarkOpen(c.now())
		c.links.Register(l)
		c.becomeClient(l)
	}
}

func (c *Coordinator) linkData(conn transport.Link, data []byte) {
	l, ok := c.links.Get(conn.ID())
	if !ok {
		return
	}
	l.Touch(c.now())

	msg, err := wire.Decode(data)
	if err != nil {
		c.logger.Debug("dropping frame", "link", l.ID(), "error", err)
		return
	}
	if c.monitor.Observe(l, msg) {
		return
	}

	switch msg.Type {
	case wire.TypeUpdate:
		if err := c.docs.ApplyRemote(msg.Doc, false); err != nil {
			c.logger.Error("apply update failed", "link", l.ID(), "error", err)
			return
		}
		if c.state == StateHost {
			if _, err := c.links.Broadcast(wire.Update(msg.Doc), l.ID()); err != nil {
				c.logger.Warn("relay failed", "from", l.ID(), "error", err)
			}
		}

	case wire.TypeFullSync:
		if c.state != StateClient {
			c.logger.Debug("ignoring full sync", "state", c.state)
			return
		}
		if err := c.docs.ApplyRemote(msg.Doc, true); err != nil {
			c.logger.Error("apply full sync failed", "error", err)
		}
		if c.awaitingSync {
			c.awaitingSync = false
			c.replayPending()
		}

	case wire.TypeLock:
		if c.state != StateClient {
			return
		}
		c.applyLock(msg.Locked)
		if msg.Locked {
			c.sink.Notify("The host locked the session.", notify.Info)
		} else {
			c.sink.Notify("The host unlocked the session.", notify.Info)
		}
	}
}

func (c *Coordinator) linkLost(conn transport.Link, cause error) {
	if conn == nil {
		return
	}
	id := conn.ID()
	l, registered := c.links.Unregister(id)
	if registered {
		_ = l.Close()
	}

	switch {
	case c.state == StateHost && registered:
		c.sink.Notify("A peer disconnected.", notify.Info)
		c.logger.Info("peer disconnected", "link", id, "cause", cause)

	case c.desc.Role == room.RoleClient && id == c.hostLink:
		if c.state == StateClient {
			c.sink.Notify("Lost connection to the host.", notify.Info)
		}
		if cause == nil {
			cause = transport.ErrClosed
		}
		c.failAttempt(cause)
	}
}

// failAttempt tears down the current attempt and schedules the next one, or
// gives up once the retries are spent.
func (c *Coordinator) failAttempt(cause error) {
	c.logger.Warn("session attempt failed", "role", c.desc.Role, "code", c.desc.Code, "error", cause)
	c.closeTransport()
	c.epoch++
	c.state = StateConnecting
	c.failed = true

	attempt, delay, ok := c.retries.ScheduleRetry(func(gen uint64) {
		c.queue.Enqueue(event{kind: evRetry, gen: gen})
	})
	if ok {
		c.sink.Notify(fmt.Sprintf("Reconnecting to session %s in %s (attempt %d)...",
			c.desc.Code, delay, attempt), notify.Info)
		return
	}

	if c.desc.Role == room.RoleHost {
		c.sink.Notify("Could not restore session.", notify.Error)
	} else {
		c.sink.Notify(fmt.Sprintf("Could not find session %s.", c.desc.Code), notify.Error)
	}
	c.logger.Warn("giving up on session", "code", c.desc.Code, "attempts", c.retries.Attempt())
	c.retries.Cancel()
	c.clearRecord()
	c.state = StateIdle
	c.desc = room.Descriptor{}
}

func (c *Coordinator) setLock(locked bool) {
	if c.state != StateHost {
		c.sink.Notify("Only the host can lock the session.", notify.Error)
		return
	}
	c.applyLock(locked)
	if _, err := c.links.Broadcast(wire.Lock(locked), ""); err != nil {
		c.logger.Warn("lock broadcast failed", "error", err)
	}
}

func (c *Coordinator) applyLock(locked bool) {
	c.locked = locked
	if la, ok := c.docs.(LockApplier); ok {
		if err := la.SetLocked(locked); err != nil {
			c.logger.Warn("apply lock failed", "error", err)
		}
	}
}

// dispatch sends a local snapshot to every open link or queues it.
func (c *Coordinator) dispatch(doc wire.Document) {
	if c.links.OpenCount() == 0 || c.awaitingSync {
		c.pending.Enqueue(doc)
		return
	}
	if _, err := c.links.Broadcast(wire.Update(doc), ""); err != nil {
		c.logger.Warn("broadcast failed", "error", err)
	}
}

func (c *Coordinator) flushPending() {
	if c.links.OpenCount() == 0 || c.pending.Len() == 0 {
		return
	}
	n := c.pending.Flush(c.dispatch)
	c.logger.Debug("flushed pending updates", "count", n)
}

// replayPending re-applies edits queued while offline on top of the host's
// document, then sends them, so client and host end up with the same keys.
func (c *Coordinator) replayPending() {
	n := c.pending.Flush(func(doc wire.Document) {
		if err := c.docs.ApplyRemote(doc, false); err != nil {
			c.logger.Error("reapply pending update failed", "error", err)
		}
		c.dispatch(doc)
	})
	if n > 0 {
		c.logger.Debug("replayed pending updates after full sync", "count", n)
	}
}

func (c *Coordinator) startHeartbeat() {
	epoch := c.epoch
	c.monitor.Start(c.ctx, func() {
		c.queue.Enqueue(event{kind: evHeartbeatTick, epoch: epoch})
	})
}

func (c *Coordinator) heartbeatTick() {
	expired := c.monitor.Tick(c.links.Snapshot(), c.state == StateHost)
	for _, l := range expired {
		c.links.Unregister(l.ID())
		_ = l.Close()
		c.sink.Notify("A peer stopped responding and was removed.", notify.Info)
		c.logger.Info("evicted silent peer", "link", l.ID(), "last_seen", l.LastSeen())
	}
}

func (c *Coordinator) stopOpenTimer() {
	if c.openTimer != nil {
		c.openTimer.Stop()
		c.openTimer = nil
	}
}

// closeTransport releases every transport resource of the current attempt.
func (c *Coordinator) closeTransport() {
	c.stopOpenTimer()
	c.monitor.Stop()
	c.links.CloseAll()
	c.hostLink = ""
	c.awaitingSync = false
	if c.endpoint != nil {
		if err := c.endpoint.Close(); err != nil {
			c.logger.Debug("endpoint close failed", "error", err)
		}
		c.endpoint = nil
	}
}

func (c *Coordinator) saveRecord() {
	if err := c.records.Save(c.ctx, c.desc); err != nil {
		c.logger.Warn("save session record failed", "error", err)
	}
}

func (c *Coordinator) clearRecord() {
	if err := c.records.Clear(c.ctx); err != nil {
		c.logger.Warn("clear session record failed", "error", err)
	}
}
