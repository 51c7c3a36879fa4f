package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/VincentDu2021/uring-sync/internal/stats"
)

// Config describes one local copy operation end to end: scan, chunk-size
// auto-tune, dispatch, and optional verification (§1, §12).
type Config struct {
	SrcRoot string
	DstRoot string

	Workers        int
	ScanWorkers    int
	RingDepth      uint32
	ChunkSizeBytes int64 // overrides the size sampler's p90 pick when > 0
	UseSplice      bool
	PipeTarget     int
	ForceSync      bool // --sync: skip the ring even on Linux

	BWLimitBytesPerSec int64
	Verify             bool

	// Stats, if non-nil, is used in place of a freshly created collector so
	// a caller can poll live progress while Run is still blocking.
	Stats *stats.Collector

	Logger *slog.Logger
}

// Result is the outcome of a copy operation.
type Result struct {
	Stats  stats.Snapshot
	Verify *VerifyResult
	Err    error
}

// Run executes a copy operation, blocking until every file has reached a
// terminal state and, if requested, verification has finished.
func Run(ctx context.Context, cfg Config) Result {
	info, err := os.Lstat(cfg.SrcRoot)
	if err != nil {
		return Result{Err: fmt.Errorf("source: %w", err)}
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return Result{Err: fmt.Errorf("source %s is neither a regular file nor a directory", cfg.SrcRoot)}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	queue := NewWorkQueue[FileJob]()
	sampler := NewSizeSampler()

	if info.IsDir() {
		scanner := NewScanner(ScannerConfig{
			SrcRoot: cfg.SrcRoot,
			DstRoot: cfg.DstRoot,
			Workers: cfg.ScanWorkers,
		}, queue, sampler)

		for scanErr := range scanner.Scan(ctx) {
			logger.Warn("scan error", "err", scanErr)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.DstRoot), 0o755); err != nil {
			return Result{Err: fmt.Errorf("mkdir dst parent: %w", err)}
		}
		var inodeHint uint64
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			inodeHint = stat.Ino
		}
		sampler.Observe(info.Size())
		queue.Push(FileJob{SrcPath: cfg.SrcRoot, DstPath: cfg.DstRoot, InodeHint: inodeHint})
		queue.SetDone()
	}
	collector.AddFilesTotal(sampler.Count())

	chunkSize := sampler.ChunkSize()
	if cfg.ChunkSizeBytes > 0 {
		chunkSize = cfg.ChunkSizeBytes
	}
	logger.Debug("chunk size chosen", "bytes", chunkSize, "samples", sampler.Count(), "overridden", cfg.ChunkSizeBytes > 0)

	var limiter *rate.Limiter
	if cfg.BWLimitBytesPerSec > 0 {
		limiter = NewBWLimiter(cfg.BWLimitBytesPerSec)
	}

	if err := dispatch(cfg, collector, queue, chunkSize, limiter, logger); err != nil {
		return Result{Stats: collector.Snapshot(), Err: err}
	}

	result := Result{Stats: collector.Snapshot()}
	if cfg.Verify {
		vr := Verify(ctx, VerifyConfig{
			SrcRoot: cfg.SrcRoot,
			DstRoot: cfg.DstRoot,
			Workers: cfg.Workers,
			Stats:   collector,
		})
		result.Verify = &vr
	}
	return result
}

// dispatch picks the ring path or the synchronous fallback and runs the
// copy to completion. ringAvailable is false on any non-Linux build, and
// ForceSync (--sync) opts out of the ring even where it is available.
func dispatch(cfg Config, collector *stats.Collector, queue *WorkQueue[FileJob], chunkSize int64, limiter *rate.Limiter, logger *slog.Logger) error {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	if ringAvailable && !cfg.ForceSync {
		ringDepth := cfg.RingDepth
		if ringDepth == 0 {
			ringDepth = 256
		}
		return RunRing(WorkerConfig{
			RingDepth:  ringDepth,
			ChunkSize:  chunkSize,
			UseSplice:  cfg.UseSplice,
			PipeTarget: cfg.PipeTarget,
			Stats:      collector,
			Logger:     logger,
			Limiter:    limiter,
		}, workers, queue)
	}

	return RunSync(SyncCopyConfig{
		Workers: workers,
		Stats:   collector,
	}, queue)
}
