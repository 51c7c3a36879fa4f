//go:build linux

package netcopy

import (
	"fmt"
	"net"

	"github.com/VincentDu2021/uring-sync/internal/wire"
)

func enableSenderTLS(conn *net.TCPConn, km wire.KeyMaterial) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw conn: %w", err)
	}
	var enableErr error
	if err := rc.Control(func(fd uintptr) {
		enableErr = wire.EnableSender(int(fd), km)
	}); err != nil {
		return fmt.Errorf("socket control: %w", err)
	}
	return enableErr
}

func enableReceiverTLS(conn *net.TCPConn, km wire.KeyMaterial) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw conn: %w", err)
	}
	var enableErr error
	if err := rc.Control(func(fd uintptr) {
		enableErr = wire.EnableReceiver(int(fd), km)
	}); err != nil {
		return fmt.Errorf("socket control: %w", err)
	}
	return enableErr
}
