package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/net/proxy"

	"github.com/die-net/socksify/internal/dialer"
	"github.com/die-net/socksify/internal/forward"
	"github.com/die-net/socksify/internal/socks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		proxies   = pflag.StringArray("proxy", defaultProxies(), "Proxy hop URL, repeatable, outermost first: socks5://[user:pass@]host[:port] | socks4://[user@]host[:port] | socks4a://[user@]host[:port]")
		chainFile = pflag.String("chain-file", "", "JSON file describing the proxy chain, instead of --proxy")

		connect    = pflag.String("connect", "", "Tunnel to host:port and relay stdin/stdout")
		listen     = pflag.String("listen", "", "Local listen address for port forwarding (e.g. 127.0.0.1:8022); requires --forward")
		forwardTo  = pflag.String("forward", "", "Destination host:port for connections accepted on --listen")
		resolve    = pflag.String("resolve", "", "Resolve a name (or reverse-resolve an IPv4 address) through the first proxy hop")
		fetch      = pflag.String("fetch", "", "GET an http(s) URL through the chain and write the body to stdout")
		envForward = pflag.Bool("env-forward", false, "Reach the first hop through the proxy named by ALL_PROXY/NO_PROXY")

		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for DNS lookup and TCP connect to the first hop")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for the SOCKS handshake across all hops")
		ioTimeout          = pflag.Duration("io-timeout", 0, "Maximum lifetime of a forwarded connection; 0 disables")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose            = pflag.Bool("verbose", false, "Log every negotiation step")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	modes := 0
	for _, set := range []bool{*connect != "", *listen != "" || *forwardTo != "", *resolve != "", *fetch != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("choose exactly one of --connect, --listen/--forward, --resolve, --fetch")
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		Logger:             logger,
	}
	if *envForward {
		dialCfg.Forward = proxy.FromEnvironmentUsing(dialer.NewDirectDialer(dialCfg).(proxy.Dialer))
	}

	hops := *proxies
	if *chainFile != "" && !pflag.CommandLine.Changed("proxy") {
		hops = nil
	}
	d, err := buildDialer(dialCfg, hops, *chainFile)
	if err != nil {
		return err
	}
	if cd, ok := d.(*dialer.ChainDialer); ok {
		logger.Debug("using proxy chain", "chain", cd.Chain().String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *connect != "":
		conn, err := d.DialContext(ctx, "tcp", *connect)
		if err != nil {
			return err
		}
		return netcat(ctx, conn, os.Stdin, os.Stdout)

	case *resolve != "":
		cd, ok := d.(*dialer.ChainDialer)
		if !ok {
			return errors.New("--resolve needs a socks5 proxy")
		}
		addr, err := dialer.ResolveViaSOCKS5(ctx, dialCfg, cd.Chain()[0], *resolve)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil

	case *fetch != "":
		return fetchURL(ctx, dialer.NewHTTPClient(d), *fetch, os.Stdout)

	default:
		return serveForward(ctx, logger, d, *listen, *forwardTo, ka, *ioTimeout)
	}
}

// buildDialer uses the chain file when one is named, otherwise the proxy
// URLs. Naming both is an error.
func buildDialer(cfg dialer.Config, proxies []string, chainFile string) (dialer.Dialer, error) {
	if chainFile == "" {
		d, err := dialer.New(cfg, proxies...)
		if err != nil {
			return nil, fmt.Errorf("invalid --proxy: %w", err)
		}
		return d, nil
	}

	if len(proxies) > 0 {
		return nil, errors.New("--chain-file and --proxy are mutually exclusive")
	}
	chain, err := dialer.LoadChainFile(chainFile)
	if err != nil {
		return nil, err
	}
	return dialer.NewChainDialer(cfg, chain)
}

func serveForward(ctx context.Context, logger *slog.Logger, d dialer.Dialer, listen, to string, ka net.KeepAliveConfig, ioTimeout time.Duration) error {
	if listen == "" || to == "" {
		return errors.New("--listen and --forward must be used together")
	}
	dest, err := socks.ParseDestination(to)
	if err != nil {
		return fmt.Errorf("invalid --forward: %w", err)
	}

	f, err := forward.NewForwarder(forward.Config{
		Destination: dest,
		IOTimeout:   ioTimeout,
		Dialer:      d,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ln, err := forward.ListenTCP(ctx, "tcp", listen, ka)
	if err != nil {
		return err
	}

	err = f.Serve(ctx, ln)
	logger.Info("shutting down")
	return err
}

// netcat relays in to conn and conn to out until the remote side closes or
// ctx is canceled.
func netcat(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	go func() {
		_, _ = io.Copy(conn, in)
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
	}()

	_, err := io.Copy(out, conn)
	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func fetchURL(ctx context.Context, client *http.Client, rawURL string, out io.Writer) error {
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("invalid --fetch: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

// defaultProxies picks up a SOCKS proxy from ALL_PROXY, the variable curl
// and most SOCKS-aware tools share.
func defaultProxies() []string {
	for _, name := range []string{"ALL_PROXY", "all_proxy"} {
		p := os.Getenv(name)
		if strings.HasPrefix(strings.ToLower(p), "socks") {
			return []string{p}
		}
	}
	return nil
}
