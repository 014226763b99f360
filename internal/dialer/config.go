package dialer

import (
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

type Config struct {
	// DialTimeout bounds DNS lookup and TCP connect to the first hop.
	DialTimeout time.Duration
	// NegotiationTimeout bounds the whole handshake across all hops. The
	// deadline is cleared before the tunnel is returned.
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// Logger receives debug output for each hop and the SOCKS4 DNS leak
	// warning. Discarded when nil.
	Logger *slog.Logger

	// Resolver looks up destination names for plain SOCKS4 hops. Those
	// lookups do not go through the proxy. net.DefaultResolver when nil.
	Resolver *net.Resolver

	// Forward, when set, is used to reach the first hop instead of a direct
	// TCP connection, for example proxy.FromEnvironment().
	Forward proxy.Dialer
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}
