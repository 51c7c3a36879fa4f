package netcopy

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// newBWLimiter mirrors the engine package's bandwidth limiter: burst is
// capped at 1 MB so ordinary read sizes pass through without blocking.
func newBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

type rateLimitedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
}

func newRateLimitedWriter(w io.Writer, limiter *rate.Limiter) io.Writer {
	return &rateLimitedWriter{w: w, limiter: limiter}
}

func (rw *rateLimitedWriter) Write(p []byte) (int, error) {
	if err := rw.limiter.WaitN(context.Background(), len(p)); err != nil {
		return 0, err
	}
	return rw.w.Write(p)
}
