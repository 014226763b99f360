package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Forwarder tunnels every accepted connection to a fixed destination.
type Forwarder struct {
	cfg Config
	log *slog.Logger
}

func NewForwarder(cfg Config) (*Forwarder, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("forward: no dialer configured")
	}
	if cfg.Destination.Host == "" || cfg.Destination.Port <= 0 {
		return nil, fmt.Errorf("forward: invalid destination %s", cfg.Destination)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Forwarder{cfg: cfg, log: log.With("destination", cfg.Destination.String())}, nil
}

// Serve accepts connections on ln until ctx is canceled, then closes ln and
// waits for active relays to finish. It returns nil after cancellation.
func (f *Forwarder) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	f.log.Info("forwarding", "listen", ln.Addr().String())
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("forward accept: %w", err)
		}
		wg.Go(func() { f.handle(ctx, c) })
	}
}

func (f *Forwarder) handle(ctx context.Context, c net.Conn) {
	defer c.Close()

	log := f.log.With("client", c.RemoteAddr().String())

	up, err := f.cfg.Dialer.DialContext(ctx, "tcp", f.cfg.Destination.String())
	if err != nil {
		log.Warn("tunnel failed", "error", err)
		return
	}

	log.Debug("relaying")
	if err := CopyBidirectional(ctx, c, up, f.cfg.IOTimeout); err != nil && ctx.Err() == nil {
		log.Debug("relay ended", "error", err)
	}
}
