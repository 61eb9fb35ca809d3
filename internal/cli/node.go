package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/peersync/internal/config"
	"github.com/roach88/peersync/internal/docstore"
	"github.com/roach88/peersync/internal/notify"
	"github.com/roach88/peersync/internal/session"
	"github.com/roach88/peersync/internal/store"
	"github.com/roach88/peersync/internal/transport"
	"github.com/roach88/peersync/internal/transport/memnet"
	"github.com/roach88/peersync/internal/transport/wsnet"
)

// node is everything one peersync process runs: the coordinator and the
// stores, transport and sinks it is wired to.
type node struct {
	cfg      config.Config
	records  *store.Store
	docs     *docstore.BoltStore
	provider transport.Provider
	sink     notify.Sink
	coord    *session.Coordinator
	closers  []func() error
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func openRecords(cfg config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Storage.SessionDB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open session database", err)
	}
	return st, nil
}

func openDocs(cfg config.Config) (*docstore.BoltStore, error) {
	docs, err := docstore.OpenBolt(cfg.Storage.DocumentDB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open document database", err)
	}
	return docs, nil
}

// newProvider builds the configured transport.
func newProvider(cfg config.Config) transport.Provider {
	if cfg.Transport.Kind == config.TransportMemory {
		return memnet.New()
	}
	resolver := wsnet.NewZeroconfResolver(cfg.Transport.Service, cfg.Transport.Domain)
	return wsnet.New(wsnet.Config{
		Listen:        cfg.Transport.Listen,
		LookupTimeout: cfg.Transport.LookupTimeout,
	}, resolver, wsnet.WithLogger(slog.Default().With("component", "wsnet")))
}

// openNode assembles a node. Notifications go to out and, when configured,
// to Redis. Close releases everything.
func openNode(ctx context.Context, opts *RootOptions, out io.Writer, copts ...session.Option) (*node, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	n := &node{cfg: cfg}
	if n.records, err = openRecords(cfg); err != nil {
		return nil, err
	}
	n.closers = append(n.closers, n.records.Close)

	if n.docs, err = openDocs(cfg); err != nil {
		n.Close()
		return nil, err
	}
	n.closers = append(n.closers, n.docs.Close)

	sinks := notify.Multi{newNoticeSink(opts.Format, out), notify.LogSink{Logger: slog.Default()}}
	if cfg.Notify.RedisAddr != "" {
		client, err := notify.DialRedis(ctx, cfg.Notify.RedisAddr)
		if err != nil {
			n.Close()
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to connect to redis at %s", cfg.Notify.RedisAddr), err)
		}
		n.closers = append(n.closers, client.Close)
		redisSink := notify.NewRedisSink(client, cfg.Notify.RedisChannel)
		n.closers = append(n.closers, redisSink.Close)
		sinks = append(sinks, redisSink)
	}
	n.sink = sinks

	n.provider = newProvider(cfg)
	copts = append([]session.Option{session.WithLogger(slog.Default().With("component", "session"))}, copts...)
	n.coord = session.New(n.provider, n.docs, n.records, n.sink, cfg.SessionSettings(), copts...)
	return n, nil
}

// Close releases resources in reverse order of acquisition.
func (n *node) Close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	n.closers = nil
}
