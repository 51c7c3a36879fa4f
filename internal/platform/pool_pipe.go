//go:build linux

package platform

import "golang.org/x/sys/unix"

// Pipe is one reusable kernel pipe pair used for splice (§4.B). The pool
// treats its kernel buffer as opaque: the state machine must drain what it
// writes in before the pipe is released back to the pool.
type Pipe struct {
	ReadFd  int
	WriteFd int
}

// PipePool is a fixed-capacity set of kernel pipes with a free list, same
// exclusivity shape as BufferPool.
type PipePool struct {
	pipes []Pipe
	free  []int
	held  []bool
}

// NewPipePool creates capacity pipes, each resized via F_SETPIPE_SZ to at
// least targetSize bytes if targetSize > 0.
func NewPipePool(capacity, targetSize int) (*PipePool, error) {
	p := &PipePool{
		pipes: make([]Pipe, capacity),
		free:  make([]int, capacity),
		held:  make([]bool, capacity),
	}

	for i := 0; i < capacity; i++ {
		var fds [2]int
		if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
			p.closeUpTo(i)
			return nil, err
		}
		if targetSize > 0 {
			// Best-effort: a pipe whose resize fails still works, just at
			// the default kernel size.
			_, _ = unix.FcntlInt(uintptr(fds[1]), unix.F_SETPIPE_SZ, targetSize)
		}
		p.pipes[i] = Pipe{ReadFd: fds[0], WriteFd: fds[1]}
		p.free[i] = capacity - 1 - i
	}
	return p, nil
}

func (p *PipePool) closeUpTo(n int) {
	for i := 0; i < n; i++ {
		_ = unix.Close(p.pipes[i].ReadFd)
		_ = unix.Close(p.pipes[i].WriteFd)
	}
}

// Capacity returns the total number of pipes the pool manages.
func (p *PipePool) Capacity() int { return len(p.held) }

// AvailableCount returns capacity minus the number currently held.
func (p *PipePool) AvailableCount() int { return len(p.free) }

// Acquire returns a pipe and its pool index, or ok=false if exhausted.
func (p *PipePool) Acquire() (pipe Pipe, index int, ok bool) {
	if len(p.free) == 0 {
		return Pipe{}, -1, false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.held[idx] = true
	return p.pipes[idx], idx, true
}

// Release returns pipe index to the free list.
func (p *PipePool) Release(index int) {
	if index < 0 || index >= len(p.held) || !p.held[index] {
		return
	}
	p.held[index] = false
	p.free = append(p.free, index)
}

// Close closes every pipe fd the pool owns.
func (p *PipePool) Close() error {
	p.closeUpTo(len(p.pipes))
	return nil
}
