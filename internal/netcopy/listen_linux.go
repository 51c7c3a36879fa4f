//go:build linux

package netcopy

import (
	"fmt"
	"net"

	"github.com/VincentDu2021/uring-sync/internal/wire"
)

func setListenerOpts(ln *net.TCPListener) error {
	rc, err := ln.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw conn: %w", err)
	}
	var setErr error
	if err := rc.Control(func(fd uintptr) {
		setErr = wire.SetListenerOpts(int(fd))
	}); err != nil {
		return fmt.Errorf("socket control: %w", err)
	}
	return setErr
}
