package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/die-net/socksify/internal/socks"
)

// ResolveViaSOCKS5 asks a SOCKS5 proxy to resolve host using the vendor
// RESOLVE command (Tor's 0xF0, or 0xF1 for IPv4 literals). It opens its own
// connection to p and always closes it before returning.
func ResolveViaSOCKS5(ctx context.Context, cfg Config, p socks.Proxy, host string) (addr string, err error) {
	if p.Version != socks.SOCKS5 {
		return "", &socks.Error{Kind: socks.UnsupportedVersion, Hop: 1, Msg: "resolve requires socks5, proxy is " + p.Version.String()}
	}
	if err := validateProxy(p); err != nil {
		return "", fmt.Errorf("socks resolve: %w", err)
	}
	if _, err := socks.ParseHost(host); err != nil {
		return "", err
	}

	conn, err := dialHop(ctx, cfg, p)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	log := cfg.logger()
	err = withNegotiationDeadline(ctx, cfg, conn, func() error {
		sess := (&socks.Client{Logger: log}).NewSession(conn, p)
		if err := sess.Authenticate(); err != nil {
			return hopError(err, 1, p)
		}
		if addr, err = sess.Resolve(host); err != nil {
			return hopError(err, 1, p)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Debug("resolved via proxy", "proxy", p.String(), "host", host, "address", addr)
	return addr, nil
}

// Resolver resolves names through a SOCKS5 proxy, caching answers for a
// fixed TTL and collapsing concurrent lookups of the same name.
type Resolver struct {
	cfg   Config
	proxy socks.Proxy
	cache *cache.Cache
	group singleflight.Group
}

// NewResolver returns a Resolver using p. A zero ttl disables caching.
func NewResolver(cfg Config, p socks.Proxy, ttl time.Duration) *Resolver {
	r := &Resolver{cfg: cfg, proxy: p}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve returns the address the proxy reports for host. IPv4 literals are
// sent with the reverse lookup command, so the answer may be a name.
func (r *Resolver) Resolve(ctx context.Context, host string) (string, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(host); ok {
			return v.(string), nil
		}
	}

	v, err, _ := r.group.Do(host, func() (any, error) {
		addr, err := ResolveViaSOCKS5(ctx, r.cfg, r.proxy, host)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Set(host, addr, cache.DefaultExpiration)
		}
		return addr, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// LookupIP resolves host and parses the answer as an IP address.
func (r *Resolver) LookupIP(ctx context.Context, host string) (net.IP, error) {
	addr, err := r.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("socks resolve %s: proxy answered %q, not an ip address", host, addr)
	}
	return ip, nil
}
