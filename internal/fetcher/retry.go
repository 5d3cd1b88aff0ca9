// Package fetcher wraps concrete page fetchers with retry behavior.
package fetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/ingest"
)

// RetryPolicy schedules jittered exponential backoff for transient fetch
// failures.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy builds a policy. Zero values fall back to 3 attempts,
// 250ms base, 5s cap.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// ShouldRetry decides whether another attempt is worth making. Only
// transient classes (timeout, network, 5xx) qualify; 4xx and login
// redirects propagate immediately so an unauthenticated site fails the run
// instead of burning the retry budget on every page.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *ingest.FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}

// Backoff returns the wait before the given (zero-based) retry attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Retrying decorates an ingest.Fetcher with the retry policy.
type Retrying struct {
	inner  ingest.Fetcher
	policy *RetryPolicy
	logger *zap.Logger
}

// WithRetry wraps inner so callers see only post-retry outcomes.
func WithRetry(inner ingest.Fetcher, policy *RetryPolicy, logger *zap.Logger) *Retrying {
	if policy == nil {
		policy = NewRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{inner: inner, policy: policy, logger: logger}
}

// Fetch attempts the load until success, a non-transient failure, or
// exhaustion of the attempt budget.
func (r *Retrying) Fetch(ctx context.Context, req ingest.FetchRequest) (ingest.Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := r.inner.Fetch(ctx, req)
		if err == nil {
			return page, nil
		}

		if !r.policy.ShouldRetry(err, attempt+1) {
			return ingest.Page{}, err
		}

		wait := r.policy.Backoff(attempt)
		r.logger.Debug("retrying fetch",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ingest.Page{}, fmt.Errorf("retry wait canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
