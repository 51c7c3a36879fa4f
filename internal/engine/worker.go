//go:build linux

package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/VincentDu2021/uring-sync/internal/platform"
	"github.com/VincentDu2021/uring-sync/internal/stats"
)

// WorkerConfig controls one Worker's behavior (§4.G).
type WorkerConfig struct {
	RingDepth  uint32
	ChunkSize  int64
	UseSplice  bool
	PipeTarget int
	Stats      *stats.Collector
	Logger     *slog.Logger

	// Limiter, if set, throttles aggregate read/splice-in throughput across
	// every context this Worker drives (§12 `--bwlimit`).
	Limiter *rate.Limiter
}

// Worker owns exactly one RingManager, BufferPool, and context arena, plus
// one PipePool when UseSplice is set, all sized to RingDepth (§4.G). It drives every file it admits
// through the state machine in advance.go until DONE or FAILED.
type Worker struct {
	id  int
	cfg WorkerConfig

	ring     *platform.RingManager
	bufPool  *platform.BufferPool
	pipePool *platform.PipePool
	arena    *arena
	queue    *WorkQueue[FileJob]
	stats    *stats.Collector
	logger   *slog.Logger

	chunkSize int64
	limiter   *rate.Limiter

	// deferredJobs holds jobs that could not get an arena slot; deferredCtxs
	// holds in-flight contexts that could not get a buffer. Both are retried
	// opportunistically rather than blocking the worker.
	deferredJobs []FileJob
	deferredCtxs []*FileContext
}

// NewWorker builds one Worker's ring, pools, and arena. Callers run several
// Workers concurrently, each draining the same queue.
func NewWorker(id int, cfg WorkerConfig, queue *WorkQueue[FileJob]) (*Worker, error) {
	ring, err := platform.NewRingManager(cfg.RingDepth)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", id, err)
	}

	bufPool := platform.NewBufferPool(int(cfg.RingDepth), int(cfg.ChunkSize))

	var pipePool *platform.PipePool
	if cfg.UseSplice {
		pipePool, err = platform.NewPipePool(int(cfg.RingDepth), cfg.PipeTarget)
		if err != nil {
			_ = ring.Close()
			return nil, fmt.Errorf("worker %d: %w", id, err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		id:        id,
		cfg:       cfg,
		ring:      ring,
		bufPool:   bufPool,
		pipePool:  pipePool,
		arena:     newArena(int(cfg.RingDepth)),
		queue:     queue,
		stats:     cfg.Stats,
		logger:    logger.With("worker", id),
		chunkSize: cfg.ChunkSize,
		limiter:   cfg.Limiter,
	}, nil
}

// Close releases the Worker's ring and pipe pool. Only safe once Run has
// returned and no context remains in flight.
func (w *Worker) Close() {
	if w.pipePool != nil {
		_ = w.pipePool.Close()
	}
	_ = w.ring.Close()
}

// RunRing fans out numWorkers Workers over queue and blocks until every one
// drains dry (§4.G, §5). It is the ring-path entry point dispatch (engine.go)
// calls for local copies on Linux.
func RunRing(cfg WorkerConfig, numWorkers int, queue *WorkQueue[FileJob]) error {
	workers := make([]*Worker, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		w, err := NewWorker(i, cfg, queue)
		if err != nil {
			for _, prior := range workers {
				prior.Close()
			}
			return err
		}
		workers = append(workers, w)
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run()
		}(w)
	}
	wg.Wait()

	for _, w := range workers {
		w.Close()
	}
	return nil
}

// Run drains the work queue until it is marked done and every file this
// Worker admitted has reached DONE or FAILED (§4.G): top up in-flight work,
// block for at least one completion if there is any outstanding, advance
// every completion that is ready, repeat.
func (w *Worker) Run() {
	for {
		w.topUp()

		if w.arena.inFlight() == 0 {
			if w.queue.IsDone() && len(w.deferredJobs) == 0 {
				return
			}
			job, ok := w.queue.WaitPop()
			if !ok {
				continue
			}
			w.startFile(job)
			continue
		}

		if err := w.ring.Submit(); err != nil {
			w.logger.Warn("submit failed", "err", err)
		}
		if err := w.ring.WaitAndProcess(w.onCompletion); err != nil {
			w.logger.Warn("wait failed", "err", err)
		}
	}
}

// topUp admits as many new files as the arena has room for without
// blocking, preferring previously-deferred jobs over fresh ones from the
// queue so admission order stays close to scan order.
func (w *Worker) topUp() {
	for len(w.deferredJobs) > 0 && w.arena.inFlight() < len(w.arena.slots) {
		job := w.deferredJobs[0]
		w.deferredJobs = w.deferredJobs[1:]
		w.startFile(job)
	}

	for w.arena.inFlight() < len(w.arena.slots) {
		job, ok := w.queue.TryPop()
		if !ok {
			return
		}
		w.startFile(job)
	}
}

func (w *Worker) startFile(job FileJob) {
	ctx := &FileContext{}
	ctx.reset()
	ctx.SrcPath, ctx.DstPath = job.SrcPath, job.DstPath

	h, ok := w.arena.alloc(ctx)
	if !ok {
		w.deferredJobs = append(w.deferredJobs, job)
		return
	}

	ctx.Op = OpOpenSrc
	ctx.State = OpeningSrc
	if err := w.ring.PrepareOpenAt(h, unix.AT_FDCWD, job.SrcPath, unix.O_RDONLY, 0); err != nil {
		w.failContext(ctx, err)
		w.arena.release(h)
	}
}

// deferredRetry parks a context whose buffer acquisition failed; the next
// completion retries it from OPENING_DST without re-opening anything.
func (w *Worker) deferredRetry(ctx *FileContext) {
	w.deferredCtxs = append(w.deferredCtxs, ctx)
}

func (w *Worker) onCompletion(h platform.Handle, res int32) {
	ctx := w.arena.get(h)
	if ctx == nil {
		w.logger.Warn("completion for unknown handle", "handle", h)
		return
	}

	w.advance(h, ctx, res)
	w.retryDeferredBuffers()

	if ctx.State == Done || ctx.State == Failed {
		w.arena.release(h)
	}
}

// retryDeferredBuffers re-attempts buffer acquisition for contexts parked
// by deferredRetry, most usefully right after a completion freed one.
func (w *Worker) retryDeferredBuffers() {
	if len(w.deferredCtxs) == 0 {
		return
	}
	pending := w.deferredCtxs
	w.deferredCtxs = nil
	for _, ctx := range pending {
		buf, idx, ok := w.bufPool.Acquire()
		if !ok {
			w.deferredCtxs = append(w.deferredCtxs, ctx)
			continue
		}
		ctx.Buf = buf
		ctx.BufIndex = idx
		w.readChunk(ctx.handle, ctx)
	}
}
