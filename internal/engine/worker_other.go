//go:build !linux

package engine

import (
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/VincentDu2021/uring-sync/internal/stats"
)

// WorkerConfig mirrors the Linux Worker's configuration surface so callers
// compile on any platform; RunRing always fails here.
type WorkerConfig struct {
	RingDepth  uint32
	ChunkSize  int64
	UseSplice  bool
	PipeTarget int
	Stats      *stats.Collector
	Logger     *slog.Logger
	Limiter    *rate.Limiter
}

// RunRing is unavailable outside Linux: io_uring is a Linux-only facility
// (§1). Callers fall back to the synchronous copy path (sync_copy.go).
func RunRing(WorkerConfig, int, *WorkQueue[FileJob]) error {
	return fmt.Errorf("ring-based copy requires Linux; use the --sync fallback")
}
