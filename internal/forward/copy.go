package forward

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	pool "github.com/libp2p/go-buffer-pool"
	"golang.org/x/sync/errgroup"
)

const copyBufferSize = 32 * 1024

// CopyBidirectional relays between left and right until one direction ends,
// ctx is canceled, or ioTimeout elapses. Both connections are closed on
// return.
func CopyBidirectional(ctx context.Context, left, right net.Conn, ioTimeout time.Duration) error {
	if ioTimeout > 0 {
		dl := time.Now().Add(ioTimeout)
		_ = left.SetDeadline(dl)
		_ = right.SetDeadline(dl)
	}

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	// Closing both sides on cancellation unblocks the copies.
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		return copyPooled(left, right)
	})
	g.Go(func() error {
		defer closeBoth()
		return copyPooled(right, left)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func copyPooled(dst io.Writer, src io.Reader) error {
	buf := pool.Get(copyBufferSize)
	defer pool.Put(buf)

	_, err := io.CopyBuffer(dst, src, buf)
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
