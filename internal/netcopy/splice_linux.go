//go:build linux

package netcopy

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const spliceAvailable = true

// spliceFile moves exactly n bytes from src (at its current offset) to the
// destination socket via an intermediate pipe, mirroring the base
// implementation's file→pipe→socket zero-copy path (§6). dst must expose a
// raw file descriptor through SyscallConn.
func spliceFile(src *os.File, dst rawConn, n int64) error {
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("splice: create pipe: %w", err)
	}
	defer pr.Close()
	defer pw.Close()

	remaining := n
	for remaining > 0 {
		chunk := remaining
		if chunk > spliceChunkSize {
			chunk = spliceChunkSize
		}

		moved, err := unix.Splice(int(src.Fd()), nil, int(pw.Fd()), nil, int(chunk), unix.SPLICE_F_MOVE)
		if err != nil {
			return fmt.Errorf("splice file->pipe: %w", err)
		}
		if moved == 0 {
			return fmt.Errorf("splice file->pipe: unexpected EOF with %d bytes remaining", remaining)
		}

		pending := moved
		rawErr := dst.Control(func(fd uintptr) {
			for pending > 0 {
				n, serr := unix.Splice(int(pr.Fd()), nil, int(fd), nil, int(pending), unix.SPLICE_F_MOVE|unix.SPLICE_F_MORE)
				if serr != nil {
					err = fmt.Errorf("splice pipe->socket: %w", serr)
					return
				}
				if n == 0 {
					err = fmt.Errorf("splice pipe->socket: wrote zero bytes with %d pending", pending)
					return
				}
				pending -= n
			}
		})
		if rawErr != nil {
			return fmt.Errorf("splice: socket control: %w", rawErr)
		}
		if err != nil {
			return err
		}

		remaining -= moved
	}
	return nil
}

const spliceChunkSize = 256 * 1024
