// Package ratelimit throttles data-connection transfers to a fixed number of
// bytes per second.
//
// A single Limiter may be shared by every session of a server, which turns it
// into a global bandwidth cap. It is built on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"io"
	"math"

	"golang.org/x/time/rate"
)

// maxChunkSize bounds a single wait so that slow limits still make progress
// in small steps.
const maxChunkSize = 32 * 1024

// Limiter is a token bucket measured in bytes.
// A nil *Limiter means "unlimited" everywhere in this package.
type Limiter struct {
	lim   *rate.Limiter
	burst int
}

// New creates a limiter allowing bytesPerSecond on average, with a burst of
// one second worth of data. It returns nil when bytesPerSecond <= 0.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := int(min(bytesPerSecond, math.MaxInt32))
	return &Limiter{
		lim:   rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst: burst,
	}
}

// Limit returns the configured rate in bytes per second, or 0 for a nil
// limiter.
func (l *Limiter) Limit() int64 {
	if l == nil {
		return 0
	}
	return int64(l.lim.Limit())
}

// chunk returns how many bytes may be moved in one step.
func (l *Limiter) chunk(n int) int {
	return min(n, l.burst, maxChunkSize)
}

// wait blocks until n bytes worth of tokens are available or ctx is done.
func (l *Limiter) wait(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	return l.lim.WaitN(ctx, n)
}

type reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *Limiter
}

// NewReader creates a rate-limited reader.
// If limiter is nil, returns the original reader unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, limiter: limiter}
}

// Read implements io.Reader. The tokens for the bytes actually read are
// consumed after the read returns.
func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := r.r.Read(p[:r.limiter.chunk(len(p))])
	if werr := r.limiter.wait(r.ctx, n); werr != nil {
		return n, werr
	}
	return n, err
}

type writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *Limiter
}

// NewWriter creates a rate-limited writer.
// If limiter is nil, returns the original writer unchanged.
func NewWriter(ctx context.Context, w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{ctx: ctx, w: w, limiter: limiter}
}

// Write implements io.Writer, waiting for tokens before each chunk.
func (w *writer) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		size := w.limiter.chunk(len(p) - total)
		if err := w.limiter.wait(w.ctx, size); err != nil {
			return total, err
		}

		n, err := w.w.Write(p[total : total+size])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
