//go:build linux

package engine

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sys/unix"

	"github.com/VincentDu2021/uring-sync/internal/platform"
)

const (
	spliceMove = unix.SPLICE_F_MOVE
)

// advance is the completion-dispatch entry point: it runs the transition
// named by ctx.State for the op that just completed with result res (§4.F).
// It mutates ctx in place and issues whatever follow-up submission the
// transition requires.
func (w *Worker) advance(h platform.Handle, ctx *FileContext, res int32) {
	if res < 0 {
		errno := unix.Errno(-res)
		if errors.Is(errno, unix.ECANCELED) {
			w.logger.Debug("ring op canceled by failed predecessor", "path", ctx.SrcPath, "state", ctx.State.String())
			w.cancelContext(ctx, errno)
			return
		}
		w.logger.Warn("ring completion failed", "path", ctx.SrcPath, "state", ctx.State.String(), "err", errno)
		w.failContext(ctx, errno)
		return
	}

	switch ctx.State {
	case OpeningSrc:
		ctx.SrcFd = int(res)
		ctx.Op = OpStatx
		ctx.State = Stating
		if err := w.ring.PrepareStatx(h, ctx.SrcFd, unix.AT_EMPTY_PATH, unix.STATX_SIZE|unix.STATX_MODE, ctx.statxBuf()); err != nil {
			w.failContext(ctx, err)
		}

	case Stating:
		size, mode := ctx.readStatx()
		ctx.FileSize = size
		ctx.Mode = mode
		w.stats.AddBytesTotal(size)
		ctx.Strategy = w.chooseStrategy(size)

		ctx.Op = OpOpenDst
		ctx.State = OpeningDst
		flags := unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC
		if err := w.ring.PrepareOpenAt(h, unix.AT_FDCWD, ctx.DstPath, flags, mode&0o777); err != nil {
			w.failContext(ctx, err)
		}

	case OpeningDst:
		ctx.DstFd = int(res)
		if ctx.FileSize == 0 {
			w.beginCloseSrc(h, ctx)
			return
		}

		if ctx.Strategy == SplicePipeStrategy {
			if pipe, idx, ok := w.pipePool.Acquire(); ok {
				ctx.Pipe = pipe
				ctx.PipeIndex = idx
				w.spliceIn(h, ctx)
				return
			}
			ctx.Strategy = ReadWriteStrategy
		}

		if buf, idx, ok := w.bufPool.Acquire(); ok {
			ctx.Buf = buf
			ctx.BufIndex = idx
			w.readChunk(h, ctx)
		} else {
			// Buffer pool momentarily exhausted; re-queue this file's
			// remaining work rather than block the worker.
			w.deferredRetry(ctx)
		}

	case Reading:
		if res == 0 {
			w.failContext(ctx, io.ErrUnexpectedEOF)
			return
		}
		ctx.LastIOSize = int(res)
		ctx.Op = OpWrite
		ctx.State = Writing
		if err := w.ring.PrepareWrite(h, ctx.DstFd, ctx.Buf[:ctx.LastIOSize], ctx.Offset); err != nil {
			w.failContext(ctx, err)
		}

	case Writing:
		ctx.Offset += int64(ctx.LastIOSize)
		w.stats.AddBytesCopied(int64(ctx.LastIOSize))
		if ctx.Offset >= ctx.FileSize {
			w.releaseBuffer(ctx)
			w.beginCloseSrc(h, ctx)
			return
		}
		w.readChunk(h, ctx)

	case SpliceIn:
		if res == 0 {
			w.failContext(ctx, io.ErrUnexpectedEOF)
			return
		}
		ctx.LastIOSize = int(res)
		ctx.Op = OpSpliceOut
		ctx.State = SpliceOut
		if err := w.ring.PrepareSplice(h, ctx.Pipe.ReadFd, -1, ctx.DstFd, ctx.Offset, ctx.LastIOSize, spliceMove); err != nil {
			w.failContext(ctx, err)
		}

	case SpliceOut:
		ctx.Offset += int64(res)
		w.stats.AddBytesCopied(int64(res))
		if ctx.Offset >= ctx.FileSize {
			w.releasePipe(ctx)
			w.beginCloseSrc(h, ctx)
			return
		}
		w.spliceIn(h, ctx)

	case ClosingSrc:
		ctx.SrcFd = -1
		ctx.Op = OpCloseDst
		ctx.State = ClosingDst
		if err := w.ring.PrepareClose(h, ctx.DstFd); err != nil {
			w.failContext(ctx, err)
		}

	case ClosingDst:
		ctx.DstFd = -1
		ctx.State = Done
		w.stats.AddFilesCopied(1)

	default:
		w.logger.Warn("completion in unexpected state", "path", ctx.SrcPath, "state", ctx.State.String())
	}
}

func (w *Worker) readChunk(h platform.Handle, ctx *FileContext) {
	remaining := ctx.FileSize - ctx.Offset
	n := min(remaining, w.chunkSize)
	w.throttle(n)
	ctx.Op = OpRead
	ctx.State = Reading
	if err := w.ring.PrepareRead(h, ctx.SrcFd, ctx.Buf[:n], ctx.Offset); err != nil {
		w.failContext(ctx, err)
	}
}

func (w *Worker) spliceIn(h platform.Handle, ctx *FileContext) {
	remaining := ctx.FileSize - ctx.Offset
	n := min(remaining, w.chunkSize)
	w.throttle(n)
	ctx.Op = OpSpliceIn
	ctx.State = SpliceIn
	if err := w.ring.PrepareSplice(h, ctx.SrcFd, ctx.Offset, ctx.Pipe.WriteFd, -1, int(n), spliceMove); err != nil {
		w.failContext(ctx, err)
	}
}

// throttle blocks the calling Worker until the bandwidth limiter (if any,
// §12 `--bwlimit`) admits n more bytes of read/splice-in traffic. Waiting
// here, before the SQE is even prepared, keeps the limiter in step with
// actual bytes requested rather than bytes already in flight.
func (w *Worker) throttle(n int64) {
	if w.limiter == nil {
		return
	}
	_ = w.limiter.WaitN(context.Background(), int(n))
}

func (w *Worker) beginCloseSrc(h platform.Handle, ctx *FileContext) {
	ctx.Op = OpCloseSrc
	ctx.State = ClosingSrc
	if err := w.ring.PrepareClose(h, ctx.SrcFd); err != nil {
		w.failContext(ctx, err)
	}
}

// failContext marks ctx FAILED, closes whatever fds it still holds directly
// (the ring is not trusted to make further progress for this context), and
// releases any pooled resource it holds.
func (w *Worker) failContext(ctx *FileContext, err error) {
	w.teardownContext(ctx, err)
	w.stats.AddFilesFailed(1)
	w.logger.Warn("file copy failed", "path", ctx.SrcPath, "err", err)
}

// cancelContext tears a context down the same way failContext does, but for
// an op that was canceled as the fallout of a failed sibling op on the same
// context rather than a fresh failure of its own — the original failure was
// already counted and logged when its own op completed, so this is recorded
// silently (§4.F, §7).
func (w *Worker) cancelContext(ctx *FileContext, err error) {
	w.teardownContext(ctx, err)
}

func (w *Worker) teardownContext(ctx *FileContext, err error) {
	ctx.Err = err
	ctx.State = Failed
	if ctx.SrcFd >= 0 {
		_ = unix.Close(ctx.SrcFd)
		ctx.SrcFd = -1
	}
	if ctx.DstFd >= 0 {
		_ = unix.Close(ctx.DstFd)
		ctx.DstFd = -1
	}
	w.releaseBuffer(ctx)
	w.releasePipe(ctx)
}

func (w *Worker) releaseBuffer(ctx *FileContext) {
	if ctx.BufIndex >= 0 {
		w.bufPool.Release(ctx.BufIndex)
		ctx.BufIndex = -1
		ctx.Buf = nil
	}
}

func (w *Worker) releasePipe(ctx *FileContext) {
	if ctx.PipeIndex >= 0 {
		w.pipePool.Release(ctx.PipeIndex)
		ctx.PipeIndex = -1
	}
}

func (w *Worker) chooseStrategy(size int64) CopyStrategy {
	if w.cfg.UseSplice && size > 0 {
		return SplicePipeStrategy
	}
	return ReadWriteStrategy
}
