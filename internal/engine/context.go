//go:build linux

package engine

import (
	"golang.org/x/sys/unix"

	"github.com/VincentDu2021/uring-sync/internal/platform"
)

// FileContext is the per-in-flight-file bundle threaded through the state
// machine via ring user-data (§3, §9 "context"). At most one async op is
// outstanding on a context at any instant.
type FileContext struct {
	SrcPath string
	DstPath string

	SrcFd int
	DstFd int

	// handle is this context's slot in its owning Worker's arena, set once
	// at admission so later transitions can re-tag SQEs without a lookup.
	handle platform.Handle

	State State
	Op    OpType

	Offset   int64
	FileSize int64
	Mode     uint32

	// Buf/BufIndex identify a held buffer in the ReadWrite path;
	// BufIndex is -1 when none is held.
	Buf      []byte
	BufIndex int

	// PipeIndex identifies a held pipe pair in the SplicePipe path;
	// PipeIndex is -1 when none is held.
	Pipe      platform.Pipe
	PipeIndex int

	Strategy CopyStrategy

	// LastIOSize is the byte count of the most recently completed read or
	// splice-in, needed to size the paired write/splice-out.
	LastIOSize int

	statx unix.Statx_t

	Err error
}

// reset clears every field of a context for reuse in the arena, paths
// included, and marks its fds and pool indices as -1; callers set the paths
// afterwards.
func (c *FileContext) reset() {
	*c = FileContext{BufIndex: -1, PipeIndex: -1, SrcFd: -1, DstFd: -1}
}

// statxBuf returns the address of the context's private statx buffer for
// the ring to write its result into.
func (c *FileContext) statxBuf() *unix.Statx_t {
	return &c.statx
}

// readStatx extracts the fields STATING needs from a completed statx.
func (c *FileContext) readStatx() (size int64, mode uint32) {
	return int64(c.statx.Size), uint32(c.statx.Mode)
}
