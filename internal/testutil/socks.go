package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	txsocks5 "github.com/txthinking/socks5"
)

// SOCKSServerConfig controls how a SOCKSServer answers.
type SOCKSServerConfig struct {
	// Username and Password, when set, are required from SOCKS5 clients.
	Username string
	Password string
	// Reply, when non-zero, is sent instead of connecting: a SOCKS5 reply
	// code, or for SOCKS4 clients a rejection.
	Reply byte
	// Resolve answers the SOCKS5 vendor RESOLVE commands.
	Resolve map[string]string
}

// SOCKSRequest is one request observed by a SOCKSServer.
type SOCKSRequest struct {
	Version byte
	Cmd     byte
	Address string
	UserID  string
}

// SOCKSServer is a small SOCKS4/4a/5 server for tests. It relays CONNECT
// requests to real destinations so servers can be chained.
type SOCKSServer struct {
	net.Listener
	cfg SOCKSServerConfig

	accepted atomic.Int32
	closed   atomic.Int32

	mu       sync.Mutex
	requests []SOCKSRequest
	conns    map[net.Conn]struct{}
}

// StartSOCKSServer listens on a loopback port and serves until the test ends.
func StartSOCKSServer(t *testing.T, ctx context.Context, cfg SOCKSServerConfig) *SOCKSServer {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	s := &SOCKSServer{Listener: ln, cfg: cfg, conns: make(map[net.Conn]struct{})}

	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			s.accepted.Add(1)
			s.track(c, true)
			wg.Go(func() {
				defer s.track(c, false)
				defer c.Close()
				_ = s.handle(ctx, c)
			})
		}
	})

	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		wg.Wait()
	})

	return s
}

func (s *SOCKSServer) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
	s.closed.Add(1)
}

// Accepted returns the number of client connections accepted so far.
func (s *SOCKSServer) Accepted() int {
	return int(s.accepted.Load())
}

// Finished returns the number of client connections fully handled.
func (s *SOCKSServer) Finished() int {
	return int(s.closed.Load())
}

// Requests returns the requests seen so far.
func (s *SOCKSServer) Requests() []SOCKSRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SOCKSRequest(nil), s.requests...)
}

func (s *SOCKSServer) record(r SOCKSRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r)
}

// handle serves one client hop. A relayed connection may itself carry
// another SOCKS handshake towards the next server.
func (s *SOCKSServer) handle(ctx context.Context, c net.Conn) error {
	br := bufio.NewReader(c)
	ver, err := br.Peek(1)
	if err != nil {
		return err
	}
	switch ver[0] {
	case 0x04:
		return s.handle4(ctx, c, br)
	case txsocks5.Ver:
		return s.handle5(ctx, c, br)
	default:
		return fmt.Errorf("unknown version %d", ver[0])
	}
}

func (s *SOCKSServer) handle5(ctx context.Context, c net.Conn, br *bufio.Reader) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(br)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if s.cfg.Username != "" {
		if !bytes.Contains(neg.Methods, []byte{txsocks5.MethodUsernamePassword}) {
			_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(c)
			return errors.New("client does not support username/password")
		}
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(c); err != nil {
			return err
		}
		urq, err := txsocks5.NewUserPassNegotiationRequestFrom(br)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if string(urq.Uname) != s.cfg.Username || string(urq.Passwd) != s.cfg.Password {
			_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(c)
			return errors.New("auth failed")
		}
		if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(c); err != nil {
			return err
		}
	} else {
		if !bytes.Contains(neg.Methods, []byte{txsocks5.MethodNone}) {
			_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(c)
			return errors.New("client does not support no-auth")
		}
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
			return err
		}
	}

	req, err := txsocks5.NewRequestFrom(br)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	s.record(SOCKSRequest{Version: req.Ver, Cmd: req.Cmd, Address: req.Address()})

	// Answers that end the exchange wait for the client to hang up, so
	// Finished reflects the client closing its connection.
	zeroReply := func(rep byte) error {
		_, err := txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}).WriteTo(c)
		drain(br)
		return err
	}

	if s.cfg.Reply != 0 {
		return zeroReply(s.cfg.Reply)
	}

	switch req.Cmd {
	case txsocks5.CmdConnect:
	case 0xf0, 0xf1:
		host, _, _ := net.SplitHostPort(req.Address())
		answer, ok := s.cfg.Resolve[host]
		if !ok {
			return zeroReply(txsocks5.RepHostUnreachable)
		}
		a, addr, port, err := txsocks5.ParseAddress(net.JoinHostPort(answer, "0"))
		if err != nil {
			return err
		}
		if a == txsocks5.ATYPDomain {
			addr = addr[1:]
		}
		_, err = txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(c)
		drain(br)
		return err
	default:
		return zeroReply(txsocks5.RepCommandNotSupported)
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		return zeroReply(txsocks5.RepHostUnreachable)
	}
	defer dst.Close()

	a, addr, port, err := txsocks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		return err
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(c); err != nil {
		return err
	}

	relay(c, br, dst)
	return nil
}

func (s *SOCKSServer) handle4(ctx context.Context, c net.Conn, br *bufio.Reader) error {
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return err
	}
	userID, err := br.ReadString(0)
	if err != nil {
		return err
	}
	userID = userID[:len(userID)-1]

	port := binary.BigEndian.Uint16(hdr[2:4])
	host := net.IP(hdr[4:8]).String()
	if hdr[4] == 0 && hdr[5] == 0 && hdr[6] == 0 && hdr[7] != 0 {
		name, err := br.ReadString(0)
		if err != nil {
			return err
		}
		host = name[:len(name)-1]
	}
	address := net.JoinHostPort(host, strconv.Itoa(int(port)))
	s.record(SOCKSRequest{Version: hdr[0], Cmd: hdr[1], Address: address, UserID: userID})

	reject := func() error {
		_, err := c.Write([]byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0})
		drain(br)
		return err
	}
	if s.cfg.Reply != 0 || hdr[1] != 0x01 {
		return reject()
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp4", address)
	if err != nil {
		return reject()
	}
	defer dst.Close()

	if _, err := c.Write([]byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0}); err != nil {
		return err
	}

	relay(c, br, dst)
	return nil
}

// relay copies between the client (reading through br, which may hold
// buffered bytes) and dst until both directions are done. A clean EOF is
// passed on as a half-close so replies still in flight are delivered.
func relay(c net.Conn, br *bufio.Reader, dst net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		_, err := io.Copy(dst, br)
		shutdownWrite(dst, err)
		done <- struct{}{}
	}()
	go func() {
		_, err := io.Copy(c, dst)
		shutdownWrite(c, err)
		done <- struct{}{}
	}()
	<-done
	<-done
}

func shutdownWrite(c net.Conn, copyErr error) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok && copyErr == nil {
		_ = cw.CloseWrite()
		return
	}
	_ = c.Close()
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
