package ingest

import (
	"context"
	"time"
)

// FetchRequest captures everything needed to load one page.
type FetchRequest struct {
	URL string
	// WaitSelector asks a rendering fetcher to wait for the selector before
	// snapshotting. HTTP fetchers ignore it.
	WaitSelector string
	// LoginPattern, when set, lets the fetcher classify a redirect to a
	// login page as FetchNotAuthenticated.
	LoginPattern string
}

// Fetcher loads one page with its own timeout and retry handling. On failure
// it returns a *FetchError after exhausting retries; non-transient classes
// propagate without retry.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Page, error)
}

// Adapter isolates all site-specific knowledge: how to build a listing URL,
// walk its pagination, and pull links and fields out of markup. Extraction
// methods are pure and must degrade to absent fields, not fail, when a page
// section is missing. Adding a job board means writing one Adapter.
type Adapter interface {
	Profile() AdapterProfile

	// BuildListingURL constructs the first listing page URL from search
	// parameters.
	BuildListingURL(params QueryParams) (string, error)

	// ExtractDetailLinks returns the distinct absolute detail URLs found on
	// a listing page. Relative hrefs are resolved against the site base.
	ExtractDetailLinks(page Page) ([]DetailLink, error)

	// FindNextPage returns the absolute URL of the next listing page, or ""
	// at the last page. Empty return is the pagination termination signal.
	FindNextPage(page Page) (string, error)

	// ExtractFields turns a fetched detail page into a raw field map.
	ExtractFields(page Page) (RawFieldMap, error)
}

// Pacer spaces requests out so aggregate request rate stays bounded
// regardless of worker concurrency. The same Pacer instance is shared by the
// pagination walk and all detail workers. Tests substitute a zero-delay
// pacer without touching crawl logic.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// DedupIndex is the cross-run identity set: (site, externalID) keys plus a
// content hash secondary key to catch re-posted listings whose URL changed.
// The backing store is durable; the core only needs membership and insert.
type DedupIndex interface {
	HasKey(ctx context.Context, site, externalID string) (bool, error)
	HasContent(ctx context.Context, site, contentHash string) (bool, error)
	Add(ctx context.Context, site, externalID, contentHash string) error
}

// RecordSink is the downstream append/upsert capability. Satisfied equally
// by a document store, key-value store, or flat file.
type RecordSink interface {
	Upsert(ctx context.Context, key RecordKey, record JobRecord) error
	Exists(ctx context.Context, key RecordKey) (bool, error)
}

// Clock returns the current time (swapped out in tests).
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// SessionRefresher re-establishes an expired authenticated session. A nil
// refresher means expiry is fatal for the run.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// Session is the per-site authenticated fetch context, shared read-only by
// all workers for the duration of a run.
type Session struct {
	// ProfileDir is the persistent browser profile holding the login state.
	ProfileDir string
	Refresher  SessionRefresher
}
