package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"syscall"
)

// ScannerConfig controls scanner behavior.
type ScannerConfig struct {
	SrcRoot string
	DstRoot string
	Workers int
}

// Scanner walks a source tree in parallel, creates the matching destination
// directory structure as it goes, feeds every regular file's size to a
// SizeSampler for chunk-size auto-tuning, and collects a FileJob for every
// regular file it finds. Jobs are sorted by InodeHint and handed to the
// queue as a single batch once the walk completes, so the Worker pool
// drains them in on-disk order rather than directory-walk order (§3, §12).
// Symlinks and other non-regular entries are skipped; preserving them is
// out of scope.
type Scanner struct {
	cfg     ScannerConfig
	queue   *WorkQueue[FileJob]
	sampler *SizeSampler
	errs    chan error

	jobsMu sync.Mutex
	jobs   []FileJob
}

// NewScanner creates a scanner that pushes onto queue and records observed
// sizes into sampler.
func NewScanner(cfg ScannerConfig, queue *WorkQueue[FileJob], sampler *SizeSampler) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	return &Scanner{
		cfg:     cfg,
		queue:   queue,
		sampler: sampler,
		errs:    make(chan error, cfg.Workers*4),
	}
}

// Scan walks the tree to completion, sorts the collected jobs by InodeHint
// for on-disk locality, pushes them to the queue as one batch, marks the
// queue done, and returns the channel of non-fatal per-entry errors
// encountered along the way (already closed by the time Scan returns).
func (s *Scanner) Scan(ctx context.Context) <-chan error {
	go func() {
		defer close(s.errs)
		s.scanTree(ctx)

		slices.SortFunc(s.jobs, func(a, b FileJob) int {
			switch {
			case a.InodeHint < b.InodeHint:
				return -1
			case a.InodeHint > b.InodeHint:
				return 1
			default:
				return 0
			}
		})
		s.queue.PushBulk(s.jobs)
		s.queue.SetDone()
	}()
	return s.errs
}

func (s *Scanner) scanTree(ctx context.Context) {
	if err := os.MkdirAll(s.cfg.DstRoot, 0o755); err != nil {
		s.sendErr(fmt.Errorf("mkdir dst root %s: %w", s.cfg.DstRoot, err))
		return
	}

	workQueue := make(chan string, s.cfg.Workers*2)
	var outstanding sync.WaitGroup

	var workerWg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for dirPath := range workQueue {
				s.scanDir(ctx, dirPath, workQueue, &outstanding)
				outstanding.Done()
			}
		}()
	}

	outstanding.Add(1)
	workQueue <- s.cfg.SrcRoot

	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()
}

func (s *Scanner) scanDir(ctx context.Context, srcPath string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	relPath, err := filepath.Rel(s.cfg.SrcRoot, srcPath)
	if err != nil {
		s.sendErr(fmt.Errorf("rel path for %s: %w", srcPath, err))
		return
	}
	dstPath := filepath.Join(s.cfg.DstRoot, relPath)

	if srcPath != s.cfg.SrcRoot {
		if err := os.MkdirAll(dstPath, 0o755); err != nil {
			s.sendErr(fmt.Errorf("mkdir %s: %w", dstPath, err))
			return
		}
	}

	entries, err := os.ReadDir(srcPath)
	if err != nil {
		s.sendErr(fmt.Errorf("readdir %s: %w", srcPath, err))
		return
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entryPath := filepath.Join(srcPath, entry.Name())
		entryDst := filepath.Join(dstPath, entry.Name())

		if err := s.processEntry(ctx, entryPath, entryDst, workQueue, outstanding); err != nil {
			s.sendErr(err)
		}
	}
}

func (s *Scanner) processEntry(ctx context.Context, srcPath, dstPath string, workQueue chan<- string, outstanding *sync.WaitGroup) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return fmt.Errorf("lstat %s: %w", srcPath, err)
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		outstanding.Add(1)
		select {
		case workQueue <- srcPath:
		case <-ctx.Done():
			outstanding.Done()
			return ctx.Err()
		}
		return nil

	case mode.IsRegular():
		var inodeHint uint64
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			inodeHint = stat.Ino
		}
		s.sampler.Observe(info.Size())
		s.addJob(FileJob{SrcPath: srcPath, DstPath: dstPath, InodeHint: inodeHint})
		return nil

	default:
		return nil
	}
}

func (s *Scanner) addJob(job FileJob) {
	s.jobsMu.Lock()
	s.jobs = append(s.jobs, job)
	s.jobsMu.Unlock()
}

func (s *Scanner) sendErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
