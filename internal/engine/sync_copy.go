package engine

import (
	"fmt"
	"os"
	"sync"

	"github.com/VincentDu2021/uring-sync/internal/platform"
	"github.com/VincentDu2021/uring-sync/internal/stats"
)

// SyncCopyConfig controls the synchronous fallback path used when the ring
// is unavailable (non-Linux, or the explicit --sync flag).
type SyncCopyConfig struct {
	Workers int
	Stats   *stats.Collector
}

// RunSync drains queue with plain goroutines calling platform.CopyFile
// instead of driving the ring (§9 "copy_file_range in the sync path"). It
// is the entire local-copy path on non-Linux platforms and an explicit
// opt-out on Linux.
func RunSync(cfg SyncCopyConfig, queue *WorkQueue[FileJob]) error {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	errCh := make(chan error, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok := queue.WaitPop()
				if !ok {
					return
				}
				if err := syncCopyOne(job, cfg.Stats); err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		}()
	}

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func syncCopyOne(job FileJob, st *stats.Collector) error {
	info, err := os.Stat(job.SrcPath)
	if err != nil {
		st.AddFilesFailed(1)
		return fmt.Errorf("stat %s: %w", job.SrcPath, err)
	}

	dstFd, err := os.OpenFile(job.DstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		st.AddFilesFailed(1)
		return fmt.Errorf("open dst %s: %w", job.DstPath, err)
	}
	defer dstFd.Close()

	st.AddBytesTotal(info.Size())

	result, err := platform.CopyFile(platform.CopyFileParams{
		SrcPath: job.SrcPath,
		DstFd:   dstFd,
		SrcSize: info.Size(),
	})
	if err != nil {
		st.AddFilesFailed(1)
		return fmt.Errorf("copy %s -> %s: %w", job.SrcPath, job.DstPath, err)
	}

	st.AddFilesCopied(1)
	st.AddBytesCopied(result.BytesWritten)
	return nil
}
