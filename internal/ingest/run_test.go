package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func boardAdapter() *fakeAdapter {
	return &fakeAdapter{
		profile: AdapterProfile{Site: "board", BaseURL: "https://board.example.com"},
		start:   "https://board.example.com/jobs?page=1",
		pages: map[string]fakeListing{
			"https://board.example.com/jobs?page=1": {
				links: []string{"https://board.example.com/job/1", "https://board.example.com/job/2"},
				next:  "https://board.example.com/jobs?page=2",
			},
			"https://board.example.com/jobs?page=2": {
				links: []string{"https://board.example.com/job/3"},
			},
		},
	}
}

func newRun(adapter Adapter, fetcher Fetcher, index DedupIndex, sink RecordSink, session *Session) *CrawlRun {
	return NewCrawlRun(
		adapter,
		fetcher,
		NewFixedDelayPacer(0),
		index,
		sink,
		session,
		fixedClock{t: scrapeTime},
		RunConfig{MaxPages: 10, Concurrency: 2},
		nil,
	)
}

func TestExecuteEndToEnd(t *testing.T) {
	t.Parallel()

	sink := newMemSink()
	run := newRun(boardAdapter(), newFakeFetcher(), newMemIndex(), sink, nil)

	summary, fresh := run.Execute(context.Background(), QueryParams{})

	require.False(t, summary.Aborted)
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, "board", summary.Site)
	require.Equal(t, 3, summary.Discovered)
	require.Equal(t, 3, summary.Fetched)
	require.Equal(t, 3, summary.Normalized)
	require.Equal(t, 3, summary.New)
	require.Zero(t, summary.Duplicates)
	require.Empty(t, summary.Errors)
	require.Len(t, fresh, 3)
	require.Equal(t, 3, sink.len())
}

func TestExecuteSecondRunFindsOnlyDuplicates(t *testing.T) {
	t.Parallel()

	index := newMemIndex()
	sink := newMemSink()

	first := newRun(boardAdapter(), newFakeFetcher(), index, sink, nil)
	summary, _ := first.Execute(context.Background(), QueryParams{})
	require.Equal(t, 3, summary.New)

	second := newRun(boardAdapter(), newFakeFetcher(), index, sink, nil)
	summary, fresh := second.Execute(context.Background(), QueryParams{})
	require.Zero(t, summary.New)
	require.Equal(t, 3, summary.Duplicates)
	require.Empty(t, fresh)
}

func TestExecuteFailsFastWithoutRequiredSession(t *testing.T) {
	t.Parallel()

	adapter := boardAdapter()
	adapter.profile.RequiresSession = true
	fetcher := newFakeFetcher()

	run := newRun(adapter, fetcher, newMemIndex(), newMemSink(), nil)
	summary, fresh := run.Execute(context.Background(), QueryParams{})

	require.True(t, summary.Aborted)
	require.Equal(t, ErrAuthenticationRequired.Error(), summary.Reason)
	require.Empty(t, fresh)
	// Fail-fast means no network traffic at all.
	require.Zero(t, fetcher.callCount())
}

func TestExecuteAbortsWithPartialOnPaginationFailure(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.fail["https://board.example.com/jobs?page=2"] = &FetchError{
		Kind: FetchTimeout,
		URL:  "https://board.example.com/jobs?page=2",
		Err:  errors.New("timeout"),
	}

	run := newRun(boardAdapter(), fetcher, newMemIndex(), newMemSink(), nil)
	summary, _ := run.Execute(context.Background(), QueryParams{})

	require.True(t, summary.Aborted)
	require.Equal(t, 2, summary.Discovered)
	require.Len(t, summary.Errors, 1)
	require.Equal(t, "pagination", summary.Errors[0].Stage)
}

func TestExecuteRecordsPerItemErrors(t *testing.T) {
	t.Parallel()

	adapter := boardAdapter()
	adapter.fieldErr = map[string]error{
		"https://board.example.com/job/2": errors.New("markup changed"),
	}
	fetcher := newFakeFetcher()
	fetcher.fail["https://board.example.com/job/3"] = &FetchError{
		Kind:   FetchHTTPError,
		URL:    "https://board.example.com/job/3",
		Status: 404,
	}

	sink := newMemSink()
	run := newRun(adapter, fetcher, newMemIndex(), sink, nil)
	summary, fresh := run.Execute(context.Background(), QueryParams{})

	// The healthy item still flows all the way to the sink.
	require.False(t, summary.Aborted)
	require.Equal(t, 3, summary.Discovered)
	require.Equal(t, 1, summary.New)
	require.Len(t, fresh, 1)
	require.Equal(t, 1, sink.len())

	stages := map[string]int{}
	for _, e := range summary.Errors {
		stages[e.Stage]++
	}
	require.Equal(t, 2, stages["detail"])
}

func TestExecuteReportsSinkFailures(t *testing.T) {
	t.Parallel()

	adapter := boardAdapter()
	sink := newMemSink()
	run := newRun(adapter, newFakeFetcher(), newMemIndex(), sink, nil)

	// Find the key for job/1 by normalizing the same URL the run will see.
	canonical, err := CanonicalURL("https://board.example.com/job/1")
	require.NoError(t, err)
	rec := record("board", canonical, "x")
	sink.failFor[rec.Key().String()] = errors.New("sink down")

	summary, fresh := run.Execute(context.Background(), QueryParams{})
	require.False(t, summary.Aborted)
	require.Len(t, fresh, 3)
	require.Equal(t, 2, sink.len())

	var sinkErrs int
	for _, e := range summary.Errors {
		if e.Stage == "sink" {
			sinkErrs++
		}
	}
	require.Equal(t, 1, sinkErrs)
}

func TestExecuteAbortsOnIndexFailure(t *testing.T) {
	t.Parallel()

	run := newRun(boardAdapter(), newFakeFetcher(), failingIndex{err: errors.New("index down")}, newMemSink(), nil)
	summary, _ := run.Execute(context.Background(), QueryParams{})

	require.True(t, summary.Aborted)
	var found bool
	for _, e := range summary.Errors {
		if e.Stage == "dedupe" {
			found = true
		}
	}
	require.True(t, found)
}
