//go:build !linux

package platform

import "fmt"

// Handle identifies the FileContext owning a ring operation. Stubbed out on
// non-Linux platforms, which have no io_uring.
type Handle uint32

// RingManager is unavailable outside Linux.
type RingManager struct{}

// CompletionFunc mirrors the Linux signature so callers compile unchanged.
type CompletionFunc func(h Handle, res int32)

// NewRingManager always fails on non-Linux platforms.
func NewRingManager(_ uint32) (*RingManager, error) {
	return nil, fmt.Errorf("io_uring: not supported on this platform")
}

func (r *RingManager) Close() error                    { return nil }
func (r *RingManager) Depth() uint32                    { return 0 }
func (r *RingManager) HasSQESpace() bool                { return false }
func (r *RingManager) Submit() error                    { return fmt.Errorf("io_uring: unsupported") }
func (r *RingManager) WaitOne() (Handle, int32, error)  { return 0, 0, fmt.Errorf("io_uring: unsupported") }
func (r *RingManager) WaitAndProcess(_ CompletionFunc) error {
	return fmt.Errorf("io_uring: unsupported")
}
func (r *RingManager) ProcessCompletions(_ CompletionFunc) {}

// KernelSupportsIOURing always returns false on non-Linux platforms.
func KernelSupportsIOURing() bool { return false }
