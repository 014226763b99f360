package testutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// StartScriptedServer runs script on the first accepted connection, for
// tests that play a proxy byte by byte. The returned func closes the
// listener, waits for script and returns its error. A listener closed
// before anyone connected is not an error.
func StartScriptedServer(t *testing.T, ctx context.Context, script func(net.Conn) error) (net.Listener, func() error) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		c, err := ln.Accept()
		if err != nil {
			return nil
		}
		defer c.Close()
		return script(c)
	})

	wait := func() error {
		_ = ln.Close()
		return g.Wait()
	}
	t.Cleanup(func() { _ = wait() })

	return ln, wait
}

// FreeAddr returns a loopback address that was free a moment ago, for
// servers such as txthinking/socks5 that insist on binding their own
// listener.
func FreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// WaitListening polls addr until it accepts TCP connections.
func WaitListening(t *testing.T, addr string) {
	t.Helper()

	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "%s not listening", addr)
}
