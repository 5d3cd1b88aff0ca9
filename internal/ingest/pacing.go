package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jobsift/jobsift/internal/metrics"
)

// FixedDelayPacer enforces a flat inter-request delay. The timer is
// context-aware so cancellation never waits out a pause.
type FixedDelayPacer struct {
	delay time.Duration
}

// NewFixedDelayPacer builds a pacer with the given inter-request delay.
// A zero or negative delay yields a no-op pacer, which is what tests use.
func NewFixedDelayPacer(delay time.Duration) *FixedDelayPacer {
	return &FixedDelayPacer{delay: delay}
}

// Wait pauses for the configured delay or until the context is done.
func (p *FixedDelayPacer) Wait(ctx context.Context, _ string) error {
	if p.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// HostPacer is a per-host token bucket. All workers hitting the same host
// share one bucket, so aggregate rate stays bounded regardless of
// concurrency.
type HostPacer struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewHostPacer builds a pacer allowing rps requests per second per host.
func NewHostPacer(rps float64, burst int) *HostPacer {
	l := rate.Limit(rps)
	if rps <= 0 {
		l = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostPacer{
		buckets: make(map[string]*rate.Limiter),
		limit:   l,
		burst:   burst,
	}
}

// Wait blocks until a token is available for the URL's host.
func (p *HostPacer) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeHost(rawURL)

	p.mu.Lock()
	bucket, ok := p.buckets[host]
	if !ok {
		bucket = rate.NewLimiter(p.limit, p.burst)
		p.buckets[host] = bucket
	}
	p.mu.Unlock()

	start := time.Now()
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacingDelay(host, waited)
	}
	return nil
}
