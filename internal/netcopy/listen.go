package netcopy

import (
	"fmt"
	"net"
)

// listen binds port preferring dual-stack IPv6 (with IPv4 also enabled)
// and falling back to IPv4-only, matching the base implementation's
// create_listen_socket (§6, §4.J).
func listen(port int) (net.Listener, error) {
	addr := fmt.Sprintf("[::]:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		if tl, ok := ln.(*net.TCPListener); ok {
			if setErr := setListenerOpts(tl); setErr != nil {
				ln.Close()
				return nil, setErr
			}
		}
		return ln, nil
	}

	addr = fmt.Sprintf(":%d", port)
	ln, err = net.Listen("tcp4", addr)
	if err != nil {
		return nil, err
	}
	if tl, ok := ln.(*net.TCPListener); ok {
		if setErr := setListenerOpts(tl); setErr != nil {
			ln.Close()
			return nil, setErr
		}
	}
	return ln, nil
}
