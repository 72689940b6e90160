// Package transfer provides bandwidth throttling for sync streams.
package transfer

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled at bytesPerSecond.
type RateLimiter struct {
	bytesPerSecond int64
	mu             sync.Mutex
	tokens         int64
	lastRefill     time.Time
	now            func() time.Time
}

// NewRateLimiter creates a new rate limiter.
// bytesPerSecond of 0 means unlimited.
func NewRateLimiter(bytesPerSecond int64) *RateLimiter {
	return &RateLimiter{
		bytesPerSecond: bytesPerSecond,
		tokens:         bytesPerSecond,
		lastRefill:     time.Now(),
		now:            time.Now,
	}
}

// Rate returns the current rate limit.
func (r *RateLimiter) Rate() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytesPerSecond
}

// refill must be called with mu held.
func (r *RateLimiter) refill() {
	now := r.now()
	elapsed := now.Sub(r.lastRefill)
	r.tokens += int64(elapsed.Seconds() * float64(r.bytesPerSecond))
	if r.tokens > r.bytesPerSecond {
		r.tokens = r.bytesPerSecond
	}
	r.lastRefill = now
}

// Wait blocks until n bytes may pass or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, n int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bytesPerSecond <= 0 {
		return nil
	}

	r.refill()
	for r.tokens < n {
		// Chunks larger than the bucket drain it and go into debt.
		if r.tokens >= r.bytesPerSecond {
			break
		}
		needed := min(n, r.bytesPerSecond) - r.tokens
		wait := time.Duration(float64(needed) / float64(r.bytesPerSecond) * float64(time.Second))

		r.mu.Unlock()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.mu.Lock()
			return ctx.Err()
		case <-timer.C:
		}
		r.mu.Lock()

		r.refill()
	}

	r.tokens -= n
	return nil
}

// ThrottledReader wraps an io.Reader with bandwidth limiting.
type ThrottledReader struct {
	ctx     context.Context
	reader  io.Reader
	limiter *RateLimiter
}

// NewThrottledReader creates a new throttled reader. Reads fail once ctx is done.
func NewThrottledReader(ctx context.Context, reader io.Reader, limiter *RateLimiter) *ThrottledReader {
	return &ThrottledReader{
		ctx:     ctx,
		reader:  reader,
		limiter: limiter,
	}
}

// Read implements io.Reader with rate limiting.
func (tr *ThrottledReader) Read(p []byte) (int, error) {
	if err := tr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := tr.reader.Read(p)
	if n > 0 && tr.limiter != nil {
		if werr := tr.limiter.Wait(tr.ctx, int64(n)); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// BandwidthLimiter holds separate limits for uploads and downloads.
type BandwidthLimiter struct {
	upload   *RateLimiter
	download *RateLimiter
}

// NewBandwidthLimiter creates a new bandwidth limiter.
// Rates of 0 mean unlimited.
func NewBandwidthLimiter(uploadBytesPerSec, downloadBytesPerSec int64) *BandwidthLimiter {
	return &BandwidthLimiter{
		upload:   NewRateLimiter(uploadBytesPerSec),
		download: NewRateLimiter(downloadBytesPerSec),
	}
}

// WrapUpload throttles a local file stream headed for the remote host.
func (bl *BandwidthLimiter) WrapUpload(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil || bl.upload.Rate() <= 0 {
		return r
	}
	return NewThrottledReader(ctx, r, bl.upload)
}

// WrapDownload throttles a remote stream headed for local storage.
func (bl *BandwidthLimiter) WrapDownload(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil || bl.download.Rate() <= 0 {
		return r
	}
	return NewThrottledReader(ctx, r, bl.download)
}

// ParseRate parses sizes such as "512K", "2M", "1.5G" or "1000" into bytes
// per second. Suffixes are binary multiples; "0" and "" mean unlimited.
func ParseRate(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/S"), "B")
	if s == "" {
		return 0, nil
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'K':
		mult = 1 << 10
	case 'M':
		mult = 1 << 20
	case 'G':
		mult = 1 << 30
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if v*mult >= math.MaxInt64 {
		return 0, fmt.Errorf("rate %q is out of range", s)
	}
	return int64(v * mult), nil
}
