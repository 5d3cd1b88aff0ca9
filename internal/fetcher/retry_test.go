package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobsift/jobsift/internal/ingest"
)

// scriptedFetcher returns canned outcomes in sequence.
type scriptedFetcher struct {
	mu       sync.Mutex
	outcomes []error
	calls    int
}

func (f *scriptedFetcher) Fetch(_ context.Context, req ingest.FetchRequest) (ingest.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.calls < len(f.outcomes) {
		err = f.outcomes[f.calls]
	}
	f.calls++
	if err != nil {
		return ingest.Page{}, err
	}
	return ingest.Page{URL: req.URL, Body: []byte("ok")}, nil
}

func fastPolicy(attempts int) *RetryPolicy {
	return NewRetryPolicy(attempts, time.Millisecond, 5*time.Millisecond)
}

func TestRetryingRecoversFromTransientFailures(t *testing.T) {
	t.Parallel()

	inner := &scriptedFetcher{outcomes: []error{
		&ingest.FetchError{Kind: ingest.FetchTimeout, URL: "u", Err: errors.New("timeout")},
		&ingest.FetchError{Kind: ingest.FetchHTTPError, URL: "u", Status: 503},
		nil,
	}}
	r := WithRetry(inner, fastPolicy(3), nil)

	page, err := r.Fetch(context.Background(), ingest.FetchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Body)
	require.Equal(t, 3, inner.calls)
}

func TestRetryingStopsOnNonTransientFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ingest.FetchError
	}{
		{"client error", &ingest.FetchError{Kind: ingest.FetchHTTPError, URL: "u", Status: 404}},
		{"login redirect", &ingest.FetchError{Kind: ingest.FetchNotAuthenticated, URL: "u"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inner := &scriptedFetcher{outcomes: []error{tt.err}}
			r := WithRetry(inner, fastPolicy(3), nil)

			_, err := r.Fetch(context.Background(), ingest.FetchRequest{URL: "https://example.com"})
			var fe *ingest.FetchError
			require.ErrorAs(t, err, &fe)
			require.Equal(t, tt.err.Kind, fe.Kind)
			require.Equal(t, 1, inner.calls)
		})
	}
}

func TestRetryingExhaustsAttemptBudget(t *testing.T) {
	t.Parallel()

	transient := &ingest.FetchError{Kind: ingest.FetchTimeout, URL: "u", Err: errors.New("timeout")}
	inner := &scriptedFetcher{outcomes: []error{transient, transient, transient, transient}}
	r := WithRetry(inner, fastPolicy(3), nil)

	_, err := r.Fetch(context.Background(), ingest.FetchRequest{URL: "https://example.com"})
	require.Error(t, err)
	require.Equal(t, 3, inner.calls)
}

func TestRetryingStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	transient := &ingest.FetchError{Kind: ingest.FetchTimeout, URL: "u", Err: errors.New("timeout")}
	inner := &scriptedFetcher{outcomes: []error{transient, transient}}
	r := WithRetry(inner, NewRetryPolicy(5, time.Second, time.Second), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Fetch(ctx, ingest.FetchRequest{URL: "https://example.com"})
	require.Error(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBackoffIsCappedAndJittered(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, 100*time.Millisecond, 300*time.Millisecond)
	for attempt := 0; attempt < 5; attempt++ {
		d := p.Backoff(attempt)
		require.Positive(t, d)
		require.LessOrEqual(t, d, 300*time.Millisecond)
	}
}
