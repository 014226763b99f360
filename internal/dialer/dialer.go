package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/die-net/socksify/internal/socks"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

const defaultSOCKSPort = 1080

var schemeVersions = map[string]socks.Version{
	"socks":   socks.SOCKS5,
	"socks5":  socks.SOCKS5,
	"socks5h": socks.SOCKS5,
	"socks4":  socks.SOCKS4,
	"socks4a": socks.SOCKS4a,
}

// New constructs a Dialer from proxy URLs ordered outermost first.
//
// Supported schemes:
//   - direct:// (alone, or no URLs at all)
//   - socks://, socks5://, socks5h://[user:pass@]host[:port]
//   - socks4://[user@]host[:port] (names are resolved locally, with a warning)
//   - socks4a://[user@]host[:port] (names are resolved by the proxy)
//
// A missing port defaults to 1080.
func New(cfg Config, upstreams ...string) (Dialer, error) {
	if len(upstreams) == 0 {
		return NewDirectDialer(cfg), nil
	}

	chain := make(Chain, 0, len(upstreams))
	for _, upstream := range upstreams {
		if isDirect(upstream) {
			if len(upstreams) > 1 {
				return nil, errors.New("direct:// cannot be combined with proxies")
			}
			return NewDirectDialer(cfg), nil
		}
		p, err := ParseProxyURL(upstream)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}

	return NewChainDialer(cfg, chain)
}

func isDirect(upstream string) bool {
	u, err := url.Parse(upstream)
	return err == nil && strings.EqualFold(u.Scheme, "direct")
}

// ParseProxyURL parses one proxy hop.
func ParseProxyURL(raw string) (socks.Proxy, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return socks.Proxy{}, fmt.Errorf("invalid url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return socks.Proxy{}, fmt.Errorf("invalid url %q: missing scheme", u.Redacted())
	}
	version, ok := schemeVersions[scheme]
	if !ok {
		return socks.Proxy{}, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		return socks.Proxy{}, fmt.Errorf("invalid url %q: path should be empty", u.Redacted())
	}
	if u.Hostname() == "" {
		return socks.Proxy{}, fmt.Errorf("invalid url %q: missing host", u.Redacted())
	}

	port := defaultSOCKSPort
	if ps := u.Port(); ps != "" {
		port, err = strconv.Atoi(ps)
		if err != nil {
			return socks.Proxy{}, fmt.Errorf("invalid url %q port: %w", u.Redacted(), err)
		}
	}

	p := socks.Proxy{Host: u.Hostname(), Port: port, Version: version}
	if u.User != nil {
		p.User = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	if p.Password != "" && version != socks.SOCKS5 {
		return socks.Proxy{}, fmt.Errorf("invalid url %q: %s has no password authentication", u.Redacted(), version)
	}

	if err := validateProxy(p); err != nil {
		return socks.Proxy{}, fmt.Errorf("invalid url %q: %w", u.Redacted(), err)
	}
	return p, nil
}
