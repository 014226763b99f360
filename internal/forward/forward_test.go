package forward

import (
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/die-net/socksify/internal/dialer"
	"github.com/die-net/socksify/internal/socks"
	"github.com/die-net/socksify/internal/testutil"
)

func startForwarder(t *testing.T, ctx context.Context, d dialer.Dialer, dest socks.Destination) (net.Listener, <-chan error) {
	t.Helper()

	ln, err := ListenTCP(ctx, "tcp", "127.0.0.1:0", net.KeepAliveConfig{Enable: false})
	require.NoError(t, err)

	f, err := NewForwarder(Config{Destination: dest, Dialer: d, IOTimeout: 2 * time.Second})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.Serve(ctx, ln) }()
	return ln, done
}

func TestForwarderRelaysThroughChain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	s := testutil.StartSOCKSServer(t, ctx, testutil.SOCKSServerConfig{})
	d, err := dialer.New(dialer.Config{}, "socks5://"+s.Addr().String())
	require.NoError(t, err)

	dest, err := socks.ParseDestination(echoLn.Addr().String())
	require.NoError(t, err)

	srvCtx, stop := context.WithCancel(ctx)
	ln, done := startForwarder(t, srvCtx, d, dest)

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	testutil.AssertEcho(t, c, c, []byte("hello"))
	_ = c.Close()

	require.Len(t, s.Requests(), 1)
	assert.Equal(t, echoLn.Addr().String(), s.Requests()[0].Address)

	stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Serve did not return after cancel")
	}
}

func TestForwarderClosesClientOnTunnelFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s := testutil.StartSOCKSServer(t, ctx, testutil.SOCKSServerConfig{Reply: 0x05})
	d, err := dialer.New(dialer.Config{}, "socks4a://"+s.Addr().String())
	require.NoError(t, err)

	ln, _ := startForwarder(t, ctx, d, socks.Destination{Host: "example.com", Port: 80})

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))

	b, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestNewForwarderValidates(t *testing.T) {
	_, err := NewForwarder(Config{Destination: socks.Destination{Host: "h", Port: 1}})
	require.Error(t, err)

	_, err = NewForwarder(Config{Dialer: dialer.NewDirectDialer(dialer.Config{})})
	require.Error(t, err)
}

func TestCopyBidirectional(t *testing.T) {
	clientSide, left := net.Pipe()
	right, serverSide := net.Pipe()

	done := make(chan error, 1)
	go func() { done <- CopyBidirectional(context.Background(), left, right, 0) }()

	go func() {
		buf := make([]byte, 5)
		if _, err := io.ReadFull(serverSide, buf); err == nil {
			_, _ = serverSide.Write(buf)
		}
	}()
	testutil.AssertEcho(t, clientSide, clientSide, []byte("hello"))

	_ = clientSide.Close()
	require.NoError(t, <-done)

	_, err := serverSide.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestCopyBidirectionalCancel(t *testing.T) {
	clientSide, left := net.Pipe()
	right, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- CopyBidirectional(ctx, left, right, 0) }()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	_, err := clientSide.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestCopyBidirectionalTimeout(t *testing.T) {
	clientSide, left := net.Pipe()
	right, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	err := CopyBidirectional(context.Background(), left, right, 50*time.Millisecond)
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestListenTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ln, err := ListenTCP(ctx, "tcp", "127.0.0.1:0", net.KeepAliveConfig{Enable: true, Idle: 30 * time.Second})
	require.NoError(t, err)
	defer ln.Close()
	require.IsType(t, &KeepAliveListener{}, ln)

	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			_ = c.Close()
		}
	}()

	c, err := ln.Accept()
	require.NoError(t, err)
	_ = c.Close()

	_, err = ListenTCP(ctx, "tcp", "256.0.0.1:0", net.KeepAliveConfig{})
	require.Error(t, err)
}
