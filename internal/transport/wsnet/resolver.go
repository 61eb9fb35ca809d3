package wsnet

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/roach88/peersync/internal/transport"
)

// Resolver maps endpoint names to dialable addresses.
type Resolver interface {
	// Announce publishes name at port on this host until the closer is closed.
	Announce(name string, port int) (io.Closer, error)
	// Lookup returns host:port for name, or an error wrapping
	// transport.ErrUnreachable when nobody answers before ctx ends.
	Lookup(ctx context.Context, name string) (string, error)
}

// ZeroconfResolver resolves names over multicast DNS on the local network.
type ZeroconfResolver struct {
	Service string
	Domain  string
}

// NewZeroconfResolver creates an mDNS resolver for service in domain.
func NewZeroconfResolver(service, domain string) *ZeroconfResolver {
	return &ZeroconfResolver{Service: service, Domain: domain}
}

type shutdownCloser struct{ server *zeroconf.Server }

func (s shutdownCloser) Close() error {
	s.server.Shutdown()
	return nil
}

// Announce registers name as an mDNS service instance.
func (z *ZeroconfResolver) Announce(name string, port int) (io.Closer, error) {
	server, err := zeroconf.Register(name, z.Service, z.Domain, port, []string{"txtv=1"}, nil)
	if err != nil {
		return nil, fmt.Errorf("announce %s: %w", name, err)
	}
	return shutdownCloser{server: server}, nil
}

// Lookup browses for the instance called name.
func (z *ZeroconfResolver) Lookup(ctx context.Context, name string) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Lookup(ctx, name, z.Service, z.Domain, entries); err != nil {
		return "", fmt.Errorf("lookup %s: %w", name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("lookup %s: %w", name, transport.ErrUnreachable)
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("lookup %s: %w", name, transport.ErrUnreachable)
			}
			if entry == nil || entry.Instance != name {
				continue
			}
			switch {
			case len(entry.AddrIPv4) > 0:
				return net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port)), nil
			case len(entry.AddrIPv6) > 0:
				return net.JoinHostPort(entry.AddrIPv6[0].String(), strconv.Itoa(entry.Port)), nil
			}
		}
	}
}

// StaticResolver is an in-process name table. Announced names resolve to
// the loopback address; it backs tests and single-machine setups.
type StaticResolver struct {
	mu    sync.Mutex
	Host  string
	names map[string]string
}

// NewStaticResolver creates an empty table resolving to 127.0.0.1.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{Host: "127.0.0.1", names: make(map[string]string)}
}

type releaseFunc func()

func (f releaseFunc) Close() error {
	f()
	return nil
}

// Announce records name at Host:port.
func (s *StaticResolver) Announce(name string, port int) (io.Closer, error) {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(port))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.names[name]; taken {
		return nil, fmt.Errorf("announce %s: %w", name, transport.ErrNameTaken)
	}
	s.names[name] = addr

	return releaseFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.names[name] == addr {
			delete(s.names, name)
		}
	}), nil
}

// Lookup returns the announced address of name.
func (s *StaticResolver) Lookup(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.names[name]
	if !ok {
		return "", fmt.Errorf("lookup %s: %w", name, transport.ErrUnreachable)
	}
	return addr, nil
}
