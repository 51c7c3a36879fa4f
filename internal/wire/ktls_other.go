//go:build !linux

package wire

import "fmt"

// EnableSender is unavailable outside Linux: kTLS is a Linux kernel
// facility installed via setsockopt(SOL_TLS, ...).
func EnableSender(int, KeyMaterial) error {
	return fmt.Errorf("ktls requires Linux")
}

// EnableReceiver is unavailable outside Linux for the same reason.
func EnableReceiver(int, KeyMaterial) error {
	return fmt.Errorf("ktls requires Linux")
}

// SetListenerOpts is a no-op stub outside Linux.
func SetListenerOpts(int) error { return nil }
