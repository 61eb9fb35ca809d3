// Package wsnet is the network transport: every named endpoint serves
// websockets on its own listener and is announced under its name through a
// Resolver (multicast DNS by default). Anonymous endpoints only dial.
package wsnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/peersync/internal/transport"
)

const (
	routePattern  = "/peersync/{peer}"
	closeDeadline = time.Second
)

// Config controls listening and name resolution.
type Config struct {
	// Listen is the bind address for named endpoints, e.g. ":0".
	Listen string
	// LookupTimeout bounds a single name resolution.
	LookupTimeout time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider creates websocket endpoints.
type Provider struct {
	cfg      Config
	resolver Resolver
	logger   *slog.Logger
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
}

var _ transport.Provider = (*Provider)(nil)

// New creates a provider resolving names through resolver.
func New(cfg Config, resolver Resolver, opts ...Option) *Provider {
	if cfg.Listen == "" {
		cfg.Listen = ":0"
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	p := &Provider{
		cfg:      cfg,
		resolver: resolver,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.LookupTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateEndpoint starts the endpoint in the background. A named endpoint
// first checks that nobody answers to its name, then listens and announces.
func (p *Provider) CreateEndpoint(name string, h transport.Handler) (transport.Endpoint, error) {
	if h == nil {
		return nil, errors.New("wsnet: nil handler")
	}
	ep := &endpoint{
		provider:  p,
		handler:   h,
		links:     make(map[string]*link),
		anonymous: name == "",
	}
	if ep.anonymous {
		ep.name = "anon-" + uuid.NewString()
	} else {
		ep.name = name
	}

	go ep.open()
	return ep, nil
}

type endpoint struct {
	provider  *Provider
	name      string
	anonymous bool
	handler   transport.Handler

	emitMu sync.Mutex

	mu       sync.Mutex
	links    map[string]*link
	server   *http.Server
	announce io.Closer
	ready    bool
	closed   bool
}

func (e *endpoint) Name() string { return e.name }

func (e *endpoint) logger() *slog.Logger {
	return e.provider.logger.With("endpoint", e.name)
}

// emit serializes handler calls for the endpoint.
func (e *endpoint) emit(ev transport.Event) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.handler(ev)
}

func (e *endpoint) fail(err error) {
	e.emit(transport.Event{Kind: transport.EventEndpointError, Err: err})
}

func (e *endpoint) open() {
	if e.anonymous {
		e.mu.Lock()
		e.ready = true
		e.mu.Unlock()
		e.emit(transport.Event{Kind: transport.EventEndpointOpen})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.provider.cfg.LookupTimeout)
	_, err := e.provider.resolver.Lookup(ctx, e.name)
	cancel()
	if err == nil {
		e.fail(fmt.Errorf("register %s: %w", e.name, transport.ErrNameTaken))
		return
	}

	ln, err := net.Listen("tcp", e.provider.cfg.Listen)
	if err != nil {
		e.fail(fmt.Errorf("listen %s: %w", e.provider.cfg.Listen, errors.Join(transport.ErrUnreachable, err)))
		return
	}

	router := mux.NewRouter()
	router.HandleFunc(routePattern, e.serveWS)
	server := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	port := ln.Addr().(*net.TCPAddr).Port
	closer, err := e.provider.resolver.Announce(e.name, port)
	if err != nil {
		_ = ln.Close()
		e.fail(fmt.Errorf("register %s: %w", e.name, err))
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = closer.Close()
		_ = ln.Close()
		return
	}
	e.server = server
	e.announce = closer
	e.ready = true
	e.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger().Warn("websocket server stopped", "error", err)
		}
	}()

	e.logger().Debug("endpoint listening", "port", port)
	e.emit(transport.Event{Kind: transport.EventEndpointOpen})
}

func (e *endpoint) serveWS(w http.ResponseWriter, r *http.Request) {
	peer := mux.Vars(r)["peer"]

	conn, err := e.provider.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger().Debug("websocket upgrade failed", "peer", peer, "error", err)
		return
	}

	l := &link{id: uuid.NewString(), owner: e, peer: peer, conn: conn}
	if !e.track(l) {
		_ = conn.Close()
		return
	}
	e.emit(transport.Event{Kind: transport.EventIncoming, Link: l})
	e.emit(transport.Event{Kind: transport.EventLinkOpen, Link: l})
	l.readLoop()
}

// ConnectTo resolves peerName and dials it in the background.
func (e *endpoint) ConnectTo(peerName string) (transport.Link, error) {
	e.mu.Lock()
	usable := e.ready && !e.closed
	e.mu.Unlock()
	if !usable {
		return nil, fmt.Errorf("connect to %s: %w", peerName, transport.ErrClosed)
	}

	l := &link{id: uuid.NewString(), owner: e, peer: peerName}
	go e.dial(l)
	return l, nil
}

func (e *endpoint) dial(l *link) {
	cfg := e.provider.cfg
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LookupTimeout)
	defer cancel()

	addr, err := e.provider.resolver.Lookup(ctx, l.peer)
	if err != nil {
		e.emit(transport.Event{Kind: transport.EventLinkError, Link: l, Err: err})
		return
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/peersync/" + url.PathEscape(e.name)}
	conn, _, err := e.provider.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		e.emit(transport.Event{
			Kind: transport.EventLinkError,
			Link: l,
			Err:  fmt.Errorf("dial %s: %w", l.peer, errors.Join(transport.ErrUnreachable, err)),
		})
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = conn.Close()
		return
	}
	l.conn = conn
	l.mu.Unlock()

	if !e.track(l) {
		_ = conn.Close()
		return
	}
	e.emit(transport.Event{Kind: transport.EventLinkOpen, Link: l})
	l.readLoop()
}

func (e *endpoint) track(l *link) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.links[l.id] = l
	return true
}

func (e *endpoint) untrack(l *link) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.links, l.id)
}

// Close stops announcing, closes every link and the listener.
func (e *endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	links := make([]*link, 0, len(e.links))
	for _, l := range e.links {
		links = append(links, l)
	}
	e.links = map[string]*link{}
	server, announce := e.server, e.announce
	e.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}

	var errs []error
	if announce != nil {
		errs = append(errs, announce.Close())
	}
	if server != nil {
		errs = append(errs, server.Close())
	}
	return errors.Join(errs...)
}

type link struct {
	id    string
	owner *endpoint
	peer  string

	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (l *link) ID() string   { return l.id }
func (l *link) Peer() string { return l.peer }

func (l *link) Send(data []byte) error {
	l.mu.Lock()
	conn, closed := l.conn, l.closed
	l.mu.Unlock()
	if closed || conn == nil {
		return fmt.Errorf("send on %s: %w", l.id, transport.ErrClosed)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send on %s: %w", l.id, err)
	}
	return nil
}

// Close sends a close frame and drops the connection. Only the remote side
// observes EventLinkClosed.
func (l *link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	l.mu.Unlock()

	l.owner.untrack(l)
	if conn == nil {
		return nil
	}

	l.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeDeadline))
	l.writeMu.Unlock()
	return conn.Close()
}

func (l *link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *link) readLoop() {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if l.isClosed() {
				return
			}
			l.mu.Lock()
			l.closed = true
			l.mu.Unlock()
			l.owner.untrack(l)
			_ = l.conn.Close()

			var cause error
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cause = fmt.Errorf("link %s: %w", l.id, errors.Join(transport.ErrUnreachable, err))
			}
			l.owner.emit(transport.Event{Kind: transport.EventLinkClosed, Link: l, Err: cause})
			return
		}
		l.owner.emit(transport.Event{Kind: transport.EventLinkData, Link: l, Data: data})
	}
}
