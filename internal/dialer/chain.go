package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/die-net/socksify/internal/socks"
)

// Chain is an ordered list of proxy hops, outermost (dialed directly) first.
type Chain []socks.Proxy

// Validate checks every hop. Hops after the first are CONNECT targets of the
// hop before them, so their hosts must also be encodable.
func (c Chain) Validate() error {
	if len(c) == 0 {
		return errors.New("empty proxy chain")
	}
	for i, p := range c {
		if err := validateProxy(p); err != nil {
			return fmt.Errorf("hop %d: %w", i+1, err)
		}
		if i == 0 {
			continue
		}
		if _, err := socks.ParseHost(p.Host); err != nil {
			return fmt.Errorf("hop %d: %w", i+1, err)
		}
	}
	return nil
}

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = p.String()
	}
	return strings.Join(parts, " -> ")
}

// ChainDialer tunnels connections through a fixed Chain.
type ChainDialer struct {
	cfg    Config
	chain  Chain
	client *socks.Client
	log    *slog.Logger
}

var (
	_ Dialer              = (*ChainDialer)(nil)
	_ proxy.ContextDialer = (*ChainDialer)(nil)
	_ proxy.Dialer        = (*ChainDialer)(nil)
)

// NewChainDialer validates chain and returns a dialer for it. The chain is
// copied.
func NewChainDialer(cfg Config, chain Chain) (*ChainDialer, error) {
	if err := chain.Validate(); err != nil {
		return nil, fmt.Errorf("socks chain: %w", err)
	}
	log := cfg.logger()
	return &ChainDialer{
		cfg:    cfg,
		chain:  append(Chain(nil), chain...),
		client: &socks.Client{Logger: log, Resolver: cfg.Resolver},
		log:    log,
	}, nil
}

// Chain returns a copy of the dialer's hops.
func (d *ChainDialer) Chain() Chain {
	return append(Chain(nil), d.chain...)
}

// DialContext tunnels to address (host:port) through the chain.
func (d *ChainDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return nil, fmt.Errorf("socks dial %s %s: unsupported network", network, address)
	}
	dest, err := socks.ParseDestination(address)
	if err != nil {
		return nil, fmt.Errorf("socks dial: %w", err)
	}
	return d.Tunnel(ctx, dest)
}

func (d *ChainDialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

// Tunnel opens one connection to the outermost hop and negotiates through
// every hop to dest. Any failure closes the connection and aborts; nothing is
// retried.
func (d *ChainDialer) Tunnel(ctx context.Context, dest socks.Destination) (net.Conn, error) {
	if err := validateDestination(dest); err != nil {
		return nil, fmt.Errorf("socks destination %s: %w", dest, err)
	}

	first := d.chain[0]
	d.log.Debug("connecting to first hop", "proxy", first.String())
	conn, err := dialHop(ctx, d.cfg, first)
	if err != nil {
		return nil, err
	}

	err = withNegotiationDeadline(ctx, d.cfg, conn, func() error {
		return d.negotiate(ctx, conn, dest)
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	d.log.Debug("tunnel established", "chain", d.chain.String(), "destination", dest.String())
	return conn, nil
}

func (d *ChainDialer) negotiate(ctx context.Context, conn net.Conn, dest socks.Destination) error {
	sess := d.client.NewSession(conn, d.chain[0])
	if err := authenticate(sess, 1); err != nil {
		return err
	}

	for i := 1; i < len(d.chain); i++ {
		next := d.chain[i]
		if _, err := sess.Connect(ctx, socks.Destination{Host: next.Host, Port: next.Port}); err != nil {
			return hopError(err, i, d.chain[i-1])
		}
		// A SOCKS5 server reached through the tunnel starts with its own
		// method negotiation, so each hop gets a fresh session.
		sess = d.client.NewSession(conn, next)
		if err := authenticate(sess, i+1); err != nil {
			return err
		}
	}

	if _, err := sess.Connect(ctx, dest); err != nil {
		return hopError(err, len(d.chain), sess.Proxy())
	}
	return nil
}

// authenticate runs method negotiation when the hop speaks SOCKS5.
func authenticate(sess *socks.Session, hop int) error {
	if sess.Proxy().Version != socks.SOCKS5 {
		return nil
	}
	if err := sess.Authenticate(); err != nil {
		return hopError(err, hop, sess.Proxy())
	}
	return nil
}

// hopError attributes err to a 1-based hop.
func hopError(err error, hop int, p socks.Proxy) error {
	var se *socks.Error
	if errors.As(err, &se) {
		return se.WithHop(hop)
	}
	return fmt.Errorf("socks hop %d %s: %w", hop, p, err)
}

func dialHop(ctx context.Context, cfg Config, p socks.Proxy) (net.Conn, error) {
	var (
		conn net.Conn
		err  error
	)
	switch fwd := cfg.Forward.(type) {
	case nil:
		conn, err = NewDirectDialer(cfg).DialContext(ctx, "tcp", p.Addr())
	case proxy.ContextDialer:
		conn, err = fwd.DialContext(ctx, "tcp", p.Addr())
	default:
		conn, err = fwd.Dial("tcp", p.Addr())
	}
	if err != nil {
		return nil, fmt.Errorf("socks hop 1 %s: %w", p, err)
	}
	return conn, nil
}

// aLongTimeAgo is a deadline in the past, used to unblock I/O when the
// context is canceled.
var aLongTimeAgo = time.Unix(1, 0)

// withNegotiationDeadline runs fn with cfg.NegotiationTimeout applied to
// conn, and aborts blocked I/O when ctx is canceled. The deadline is cleared
// again on success.
func withNegotiationDeadline(ctx context.Context, cfg Config, conn net.Conn, fn func() error) error {
	if cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.NegotiationTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(aLongTimeAgo)
	})

	err := fn()
	if !stop() {
		if err == nil {
			err = ctx.Err()
		} else {
			err = fmt.Errorf("%w (%w)", ctx.Err(), err)
		}
	}
	if err != nil {
		return err
	}

	if cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}
	return nil
}
