//go:build unix

package forward

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrControl lets a restarted forwarder rebind its port while old
// connections sit in TIME_WAIT.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
