// Package ingest defines core types and interfaces for the job-board
// ingestion engine: pagination crawling, detail collection, normalization,
// and cross-run deduplication.
package ingest

import (
	"regexp"
	"time"
)

// Page is a fetched page, either a listing page or a job detail page.
// Pages are ephemeral: produced by a Fetcher, consumed immediately by an
// Adapter, never persisted.
type Page struct {
	// URL is the final URL after redirects.
	URL       string
	Body      []byte
	FetchedAt time.Time
}

// DetailLink is a candidate job-detail URL discovered on a listing page.
// URLs are stored absolute so identity comparison is meaningful.
type DetailLink struct {
	URL       string `json:"url"`
	Site      string `json:"site"`
	PageIndex int    `json:"page_index"`
}

// RawFieldMap is an insertion-ordered mapping of site-specific field names
// to extracted text. A field that was not found on the page is absent, not
// empty: Get reports presence explicitly.
type RawFieldMap struct {
	names  []string
	values map[string]string
}

// Set records a field value, preserving first-insertion order of names.
func (m *RawFieldMap) Set(name, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[name]; !ok {
		m.names = append(m.names, name)
	}
	m.values[name] = value
}

// Get returns the field value and whether it was extracted at all.
func (m *RawFieldMap) Get(name string) (string, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Names returns field names in insertion order.
func (m *RawFieldMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len reports the number of extracted fields.
func (m *RawFieldMap) Len() int {
	return len(m.names)
}

// Canonical field names adapters emit into a RawFieldMap. The Normalizer
// only recognizes these; anything else is carried but ignored.
const (
	FieldTitle          = "title"
	FieldCompany        = "company"
	FieldLocation       = "location"
	FieldOtherLocations = "other_locations"
	FieldSalary         = "salary"
	FieldPostedDate     = "posted_date"
	FieldDescription    = "description"
)

// JobRecord is the canonical, site-independent representation of one job
// posting. Site and ExternalID together form the stable identity key; URL is
// always present and absolute. All other fields are optional and marshal to
// explicit nulls when absent. Records are immutable once built.
type JobRecord struct {
	Site           string     `json:"site"`
	ExternalID     string     `json:"external_id"`
	Title          *string    `json:"title"`
	Company        *string    `json:"company"`
	Location       *string    `json:"location"`
	OtherLocations *string    `json:"other_locations"`
	Salary         *string    `json:"salary"`
	PostedAt       *time.Time `json:"posted_date"`
	// PostedRaw keeps the site's original date text when it did not parse.
	PostedRaw   *string   `json:"posted_date_raw,omitempty"`
	Description *string   `json:"description"`
	URL         string    `json:"url"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Key returns the sink/dedup identity key for the record.
func (r JobRecord) Key() RecordKey {
	return RecordKey{Site: r.Site, ExternalID: r.ExternalID}
}

// RecordKey identifies a JobRecord across runs.
type RecordKey struct {
	Site       string
	ExternalID string
}

// String renders the key in site/id form used by sinks.
func (k RecordKey) String() string {
	return k.Site + "/" + k.ExternalID
}

// QueryParams are the search parameters a listing URL is built from.
type QueryParams struct {
	Country  string            `json:"country,omitempty"`
	Keywords string            `json:"keywords,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// AdapterProfile describes the fetch-relevant traits of a site adapter.
type AdapterProfile struct {
	Site    string
	BaseURL string
	// WaitSelector, when non-empty, marks the site as client-rendered: the
	// fetcher must wait for this selector before snapshotting the page.
	WaitSelector string
	// LoginPattern matches final URLs that indicate a login redirect.
	LoginPattern *regexp.Regexp
	// RequiresSession marks sites that need a pre-authenticated browser
	// profile before any page is fetched.
	RequiresSession bool
}

// ErrorReport is a per-item failure surfaced in a CrawlSummary.
type ErrorReport struct {
	URL   string `json:"url,omitempty"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// CrawlSummary is returned by CrawlRun.Execute. An aborted run still carries
// everything gathered before the abort.
type CrawlSummary struct {
	RunID      string        `json:"run_id"`
	Site       string        `json:"site"`
	Discovered int           `json:"discovered"`
	Fetched    int           `json:"fetched"`
	Normalized int           `json:"normalized"`
	New        int           `json:"new"`
	Duplicates int           `json:"duplicates"`
	Errors     []ErrorReport `json:"errors"`
	Aborted    bool          `json:"aborted"`
	Reason     string        `json:"reason,omitempty"`
	Started    time.Time     `json:"started_at"`
	Finished   time.Time     `json:"finished_at"`
}

// crawlState tracks per-run pagination progress. Owned exclusively by the
// single-threaded PaginationCrawler and discarded when the run ends.
type crawlState struct {
	seen         map[string]struct{}
	pagesVisited int
	failures     int
}

func newCrawlState() *crawlState {
	return &crawlState{seen: make(map[string]struct{})}
}

// markIfNew records the URL and reports whether it was unseen this run.
func (s *crawlState) markIfNew(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}
