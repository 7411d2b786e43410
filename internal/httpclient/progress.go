package httpclient

import (
	"context"
	"io"
	"sync"
	"time"
)

// ProgressFunc receives the bytes written so far and the expected total (0 or
// negative when unknown).
type ProgressFunc func(written, total int64)

// ProgressWriter wraps an io.Writer reporting the progress, reports are rate
// limited to one every interval except the last one.
type ProgressWriter struct {
	dst      io.Writer
	total    int64
	written  int64
	onUpdate ProgressFunc
	interval time.Duration
	last     time.Time
	mu       sync.Mutex
}

// NewProgressWriter creates a new progress writer.
func NewProgressWriter(dst io.Writer, total int64, interval time.Duration, onUpdate ProgressFunc) *ProgressWriter {
	if onUpdate == nil {
		onUpdate = func(int64, int64) {}
	}
	return &ProgressWriter{
		dst:      dst,
		total:    total,
		onUpdate: onUpdate,
		interval: interval,
	}
}

func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.dst.Write(p)

	pw.mu.Lock()
	pw.written += int64(n)
	now := time.Now()
	report := now.Sub(pw.last) >= pw.interval
	if report {
		pw.last = now
	}
	written := pw.written
	pw.mu.Unlock()

	if report {
		pw.onUpdate(written, pw.total)
	}
	return n, err
}

// Written returns the number of written bytes.
func (pw *ProgressWriter) Written() int64 {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.written
}

// Finish reports the final progress.
func (pw *ProgressWriter) Finish() {
	pw.onUpdate(pw.Written(), pw.total)
}

// CopyWithContext copies src into dst stopping as soon as ctx is done.
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				total += int64(nw)
			}
			if werr != nil {
				return total, werr
			}
			if nr != nw {
				return total, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}
