package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedDelayPacerZeroDelayIsNoop(t *testing.T) {
	t.Parallel()

	p := NewFixedDelayPacer(0)
	start := time.Now()
	require.NoError(t, p.Wait(context.Background(), "https://example.com"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestFixedDelayPacerHonorsCancellation(t *testing.T) {
	t.Parallel()

	p := NewFixedDelayPacer(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Wait(ctx, "https://example.com")
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestHostPacerUnlimitedWhenRateUnset(t *testing.T) {
	t.Parallel()

	p := NewHostPacer(0, 0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background(), "https://example.com/a"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestHostPacerThrottlesPerHost(t *testing.T) {
	t.Parallel()

	// 1 rps, burst 1: the second request on the same host must wait, but a
	// different host proceeds immediately.
	p := NewHostPacer(1, 1)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx, "https://a.example.com/1"))

	start := time.Now()
	require.NoError(t, p.Wait(ctx, "https://b.example.com/1"))
	require.Less(t, time.Since(start), 200*time.Millisecond)

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := p.Wait(cancelCtx, "https://a.example.com/2")
	require.Error(t, err)
}
