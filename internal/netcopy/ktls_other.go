//go:build !linux

package netcopy

import (
	"fmt"
	"net"

	"github.com/VincentDu2021/uring-sync/internal/wire"
)

func enableSenderTLS(conn *net.TCPConn, km wire.KeyMaterial) error {
	return fmt.Errorf("ktls requires Linux")
}

func enableReceiverTLS(conn *net.TCPConn, km wire.KeyMaterial) error {
	return fmt.Errorf("ktls requires Linux")
}
