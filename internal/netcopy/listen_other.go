//go:build !linux

package netcopy

import "net"

func setListenerOpts(ln *net.TCPListener) error { return nil }
