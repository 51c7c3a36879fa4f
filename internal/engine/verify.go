package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/VincentDu2021/uring-sync/internal/event"
	"github.com/VincentDu2021/uring-sync/internal/stats"
)

// VerifyConfig controls the post-copy verification pass (§12, `--verify`).
type VerifyConfig struct {
	SrcRoot string
	DstRoot string
	Workers int
	Events  chan<- event.Event
	Stats   *stats.Collector
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Verified int64
	Failed   int64
	Errors   []VerifyError
}

// VerifyError records a single checksum mismatch or unreadable file.
type VerifyError struct {
	Path    string
	SrcHash string
	DstHash string
}

// Verify walks the destination tree and compares BLAKE3 checksums against
// the source for every regular file, fanning out to cfg.Workers goroutines.
// It is entirely separate from the copy state machine: it runs after a copy
// completes and never touches the ring.
func Verify(ctx context.Context, cfg VerifyConfig) VerifyResult {
	emitEvent(cfg.Events, event.Event{Type: event.VerifyStarted})

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	files := collectVerifyFiles(ctx, cfg.DstRoot, cfg.SrcRoot)

	taskCh := make(chan string, workers*2)
	var mu sync.Mutex
	var result VerifyResult
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for relPath := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				verifyOne(cfg, relPath, &mu, &result)
			}
		}()
	}

	for _, f := range files {
		select {
		case <-ctx.Done():
			break
		case taskCh <- f:
		}
	}
	close(taskCh)
	wg.Wait()

	emitEvent(cfg.Events, event.Event{Type: event.VerifyComplete, Total: result.Verified + result.Failed})
	return result
}

func verifyOne(cfg VerifyConfig, relPath string, mu *sync.Mutex, result *VerifyResult) {
	srcPath := filepath.Join(cfg.SrcRoot, relPath)
	dstPath := filepath.Join(cfg.DstRoot, relPath)

	srcHash, err := HashFile(srcPath)
	if err != nil {
		recordVerifyFailure(cfg, mu, result, VerifyError{Path: relPath, SrcHash: "error", DstHash: "n/a"}, err)
		return
	}

	dstHash, err := HashFile(dstPath)
	if err != nil {
		recordVerifyFailure(cfg, mu, result, VerifyError{Path: relPath, SrcHash: srcHash, DstHash: "error"}, err)
		return
	}

	if srcHash != dstHash {
		recordVerifyFailure(cfg, mu, result, VerifyError{Path: relPath, SrcHash: srcHash, DstHash: dstHash}, nil)
		return
	}

	mu.Lock()
	result.Verified++
	mu.Unlock()
	cfg.Stats.AddFilesVerified(1)
	emitEvent(cfg.Events, event.Event{Type: event.VerifyOK, Path: relPath})
}

func recordVerifyFailure(cfg VerifyConfig, mu *sync.Mutex, result *VerifyResult, ve VerifyError, err error) {
	mu.Lock()
	result.Failed++
	result.Errors = append(result.Errors, ve)
	mu.Unlock()
	cfg.Stats.AddFilesVerifyFailed(1)
	emitEvent(cfg.Events, event.Event{Type: event.VerifyFailed, Path: ve.Path, Error: err})
}

// collectVerifyFiles walks the destination tree and returns relative paths
// of regular files that also exist in the source tree.
func collectVerifyFiles(ctx context.Context, dstRoot, srcRoot string) []string {
	var files []string
	_ = filepath.WalkDir(dstRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(dstRoot, path)
		if err != nil {
			return nil
		}

		srcPath := filepath.Join(srcRoot, relPath)
		if _, err := os.Lstat(srcPath); err != nil {
			return nil
		}

		files = append(files, relPath)
		return nil
	})
	return files
}

func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
