package socks

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	// CmdResolve and CmdResolvePTR are the Tor vendor extensions that ask a
	// SOCKS5 proxy to resolve a name (or an IPv4 literal) without opening a
	// data connection.
	CmdResolve    byte = 0xf0
	CmdResolvePTR byte = 0xf1
)

// Client holds what a Session needs besides the connection.
type Client struct {
	// Logger receives per-step debug output. Discarded when nil.
	Logger *slog.Logger

	// Resolver looks up domain names for SOCKS4 hops, which cannot carry
	// them. net.DefaultResolver when nil.
	Resolver *net.Resolver
}

// State is the negotiation state of a Session.
type State int

const (
	Idle State = iota
	Connected
	Authenticating
	Authenticated
	RequestSent
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connected:
		return "connected"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case RequestSent:
		return "request sent"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session negotiates with one proxy hop over rw. It must not be used from
// more than one goroutine.
type Session struct {
	rw     io.ReadWriter
	proxy  Proxy
	client *Client
	log    *slog.Logger
	state  State
}

// NewSession starts negotiating with p over an established connection.
func (c *Client) NewSession(rw io.ReadWriter, p Proxy) *Session {
	log := c.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Session{
		rw:     rw,
		proxy:  p,
		client: c,
		log:    log.With("proxy", p.String()),
		state:  Connected,
	}
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Proxy() Proxy {
	return s.proxy
}

func (s *Session) fail(err error) error {
	s.state = Failed
	return err
}

// Authenticate performs SOCKS5 method negotiation. Only the method matching
// the configured credentials is offered: username/password when the proxy has
// credentials, otherwise no authentication.
func (s *Session) Authenticate() error {
	if s.proxy.Version != SOCKS5 {
		return s.fail(&Error{Kind: UnsupportedVersion, Msg: "authentication requires socks5, proxy is " + s.proxy.Version.String()})
	}
	if s.state != Connected {
		return s.fail(fmt.Errorf("socks: authenticate in state %s", s.state))
	}
	s.state = Authenticating

	method := txsocks5.MethodNone
	if s.proxy.HasAuth() {
		method = txsocks5.MethodUsernamePassword
	}

	s.log.Debug("sending method negotiation", "method", method)
	if _, err := txsocks5.NewNegotiationRequest([]byte{method}).WriteTo(s.rw); err != nil {
		return s.fail(fmt.Errorf("write negotiation: %w", err))
	}

	rep, err := readN(s.rw, 2, "negotiation reply")
	if err != nil {
		return s.fail(err)
	}
	if rep[0] != 0x04 && rep[0] != txsocks5.Ver {
		return s.fail(unexpectedByte(UnsupportedVersion, rep[0], 0x04, txsocks5.Ver))
	}
	if rep[1] != method {
		return s.fail(unexpectedByte(AuthMethodMismatch, rep[1], method))
	}

	if method == txsocks5.MethodUsernamePassword {
		s.log.Debug("sending username/password", "user", s.proxy.User)
		req := txsocks5.NewUserPassNegotiationRequest([]byte(s.proxy.User), []byte(s.proxy.Password))
		if _, err := req.WriteTo(s.rw); err != nil {
			return s.fail(fmt.Errorf("write userpass: %w", err))
		}
		st, err := readN(s.rw, 2, "userpass reply")
		if err != nil {
			return s.fail(err)
		}
		if st[1] != txsocks5.UserPassStatusSuccess {
			return s.fail(unexpectedByte(AuthenticationFailed, st[1], txsocks5.UserPassStatusSuccess))
		}
	}

	s.state = Authenticated
	return nil
}

func (s *Session) ready() error {
	want := Connected
	if s.proxy.Version == SOCKS5 {
		want = Authenticated
	}
	if s.state != want {
		return fmt.Errorf("socks: request in state %s, want %s", s.state, want)
	}
	return nil
}

// Connect asks the proxy to open a TCP connection to dest. On success the
// connection carries dest's traffic from here on. ctx only bounds the local
// DNS lookup a SOCKS4 hop needs for a domain name; the caller owns deadlines
// on the connection itself.
func (s *Session) Connect(ctx context.Context, dest Destination) (Bound, error) {
	if err := s.ready(); err != nil {
		return Bound{}, s.fail(err)
	}
	h, err := ParseHost(dest.Host)
	if err != nil {
		return Bound{}, s.fail(err)
	}

	var b Bound
	switch s.proxy.Version {
	case SOCKS5:
		b, err = s.request5(txsocks5.CmdConnect, h, dest.Port)
	case SOCKS4, SOCKS4a:
		b, err = s.connect4(ctx, h, dest.Port)
	default:
		err = &Error{Kind: UnsupportedVersion, Msg: s.proxy.Version.String()}
	}
	if err != nil {
		return Bound{}, s.fail(err)
	}

	s.state = Complete
	s.log.Debug("connected", "destination", dest.String(), "bound", b.String())
	return b, nil
}

// Resolve asks a SOCKS5 proxy to resolve host with the vendor RESOLVE
// command and returns the address it reports.
func (s *Session) Resolve(host string) (string, error) {
	if s.proxy.Version != SOCKS5 {
		return "", s.fail(&Error{Kind: UnsupportedVersion, Msg: "resolve requires socks5, proxy is " + s.proxy.Version.String()})
	}
	if err := s.ready(); err != nil {
		return "", s.fail(err)
	}
	h, err := ParseHost(host)
	if err != nil {
		return "", s.fail(err)
	}

	cmd := CmdResolve
	if h.Kind == AddrIPv4 {
		cmd = CmdResolvePTR
	}
	b, err := s.request5(cmd, h, 0)
	if err != nil {
		return "", s.fail(err)
	}

	s.state = Complete
	s.log.Debug("resolved", "host", host, "address", b.Host)
	return b.Host, nil
}

func (s *Session) request5(cmd byte, h Host, port int) (Bound, error) {
	atyp, addr := h.SOCKS5()
	s.log.Debug("sending request", "cmd", cmd, "host", h.String(), "port", port)
	if _, err := txsocks5.NewRequest(cmd, atyp, addr, portBytes(port)).WriteTo(s.rw); err != nil {
		return Bound{}, fmt.Errorf("write request: %w", err)
	}
	s.state = RequestSent
	return readSOCKS5Reply(s.rw)
}

// connect4 sends a SOCKS4 CONNECT:
//
//	VN(4) CD(1) DSTPORT(2) DSTIP(4) USERID NUL [HOST NUL]
//
// SOCKS4a sends domain names as the invalid address 0.0.0.1 followed by the
// name after the user id. Plain SOCKS4 resolves the name locally first.
func (s *Session) connect4(ctx context.Context, h Host, port int) (Bound, error) {
	if h.Kind == AddrDomain && s.proxy.Version == SOCKS4 {
		s.log.Warn("socks4 cannot carry host names, resolving locally; this DNS lookup bypasses the proxy", "host", h.Domain)
		ip, err := s.lookupIPv4(ctx, h.Domain)
		if err != nil {
			return Bound{}, err
		}
		h = Host{Kind: AddrIPv4, IPv4: ip}
	}

	req := make([]byte, 0, 10+len(s.proxy.User)+len(h.Domain))
	req = append(req, s.proxy.Version.wireVersion(), txsocks5.CmdConnect)
	req = binary.BigEndian.AppendUint16(req, uint16(port))
	if h.Kind == AddrIPv4 {
		req = append(req, h.IPv4[:]...)
	} else {
		req = append(req, 0, 0, 0, 1)
	}
	req = append(req, s.proxy.User...)
	req = append(req, 0)
	if h.Kind == AddrDomain {
		req = append(req, h.Domain...)
		req = append(req, 0)
	}

	s.log.Debug("sending socks4 request", "host", h.String(), "port", port)
	if _, err := s.rw.Write(req); err != nil {
		return Bound{}, fmt.Errorf("write socks4 request: %w", err)
	}
	s.state = RequestSent
	return readSOCKS4Reply(s.rw)
}

var errNoIPv4 = errors.New("no ipv4 address")

func (s *Session) lookupIPv4(ctx context.Context, host string) ([4]byte, error) {
	r := s.client.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return [4]byte{}, fmt.Errorf("resolve %s for socks4: %w", host, err)
	}
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			return a.As4(), nil
		}
	}
	return [4]byte{}, fmt.Errorf("resolve %s for socks4: %w", host, errNoIPv4)
}
