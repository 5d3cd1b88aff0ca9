package ingest

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a page load failed.
type FetchErrorKind string

// Fetch failure classes. Timeout, Network and 5xx HTTP errors are transient
// and eligible for retry; everything else propagates immediately.
const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchNetworkError     FetchErrorKind = "network_error"
	FetchHTTPError        FetchErrorKind = "http_error"
	FetchNotAuthenticated FetchErrorKind = "not_authenticated"
)

// FetchError is the typed failure a Fetcher returns after its own retries.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPError:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	case FetchNotAuthenticated:
		return fmt.Sprintf("fetch %s: redirected to login", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the fetch could help.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case FetchTimeout, FetchNetworkError:
		return true
	case FetchHTTPError:
		return e.Status >= 500
	default:
		return false
	}
}

// ErrAuthenticationRequired aborts a run for a site whose adapter needs a
// pre-authenticated session that is missing or no longer valid.
var ErrAuthenticationRequired = errors.New("authentication required")

// ErrMaxPagesExceeded aborts a pagination walk that hit the safety bound.
var ErrMaxPagesExceeded = errors.New("max pages exceeded")

// ExtractionError reports an adapter failure on an otherwise fetched page.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// DetailError is the per-item failure slot in a collected batch. It never
// aborts the batch.
type DetailError struct {
	Link DetailLink
	Err  error
}

func (e *DetailError) Error() string {
	return fmt.Sprintf("detail %s: %v", e.Link.URL, e.Err)
}

func (e *DetailError) Unwrap() error {
	return e.Err
}

// NormalizationError rejects a RawFieldMap that cannot yield a stable record
// identity. Reported, never silently skipped.
type NormalizationError struct {
	URL string
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.URL, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}
