package ingest

import (
	"context"
	"sync"
	"time"
)

// fakeListing describes one listing page served by the fake adapter.
type fakeListing struct {
	links []string
	next  string
}

type fakeAdapter struct {
	profile  AdapterProfile
	start    string
	buildErr error
	pages    map[string]fakeListing
	fields   map[string]RawFieldMap
	fieldErr map[string]error
}

func (a *fakeAdapter) Profile() AdapterProfile { return a.profile }

func (a *fakeAdapter) BuildListingURL(QueryParams) (string, error) {
	if a.buildErr != nil {
		return "", a.buildErr
	}
	return a.start, nil
}

func (a *fakeAdapter) ExtractDetailLinks(page Page) ([]DetailLink, error) {
	listing := a.pages[page.URL]
	var out []DetailLink
	for _, u := range listing.links {
		out = append(out, DetailLink{URL: u, Site: a.profile.Site})
	}
	return out, nil
}

func (a *fakeAdapter) FindNextPage(page Page) (string, error) {
	return a.pages[page.URL].next, nil
}

func (a *fakeAdapter) ExtractFields(page Page) (RawFieldMap, error) {
	if err := a.fieldErr[page.URL]; err != nil {
		return RawFieldMap{}, err
	}
	if f, ok := a.fields[page.URL]; ok {
		return f, nil
	}
	var m RawFieldMap
	m.Set(FieldTitle, "Role at "+page.URL)
	return m, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	delay map[string]time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fail: map[string]error{}, delay: map[string]time.Duration{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req FetchRequest) (Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()

	if d := f.delay[req.URL]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if err, ok := f.fail[req.URL]; ok {
		return Page{}, err
	}
	return Page{URL: req.URL, Body: []byte("<html></html>"), FetchedAt: time.Now().UTC()}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// memIndex is a map-backed DedupIndex for tests.
type memIndex struct {
	mu       sync.Mutex
	keys     map[string]struct{}
	contents map[string]struct{}
}

func newMemIndex() *memIndex {
	return &memIndex{keys: map[string]struct{}{}, contents: map[string]struct{}{}}
}

func (i *memIndex) HasKey(_ context.Context, site, externalID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.keys[site+"/"+externalID]
	return ok, nil
}

func (i *memIndex) HasContent(_ context.Context, site, contentHash string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.contents[site+"/"+contentHash]
	return ok, nil
}

func (i *memIndex) Add(_ context.Context, site, externalID, contentHash string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[site+"/"+externalID] = struct{}{}
	i.contents[site+"/"+contentHash] = struct{}{}
	return nil
}

// memSink is a map-backed RecordSink for tests.
type memSink struct {
	mu      sync.Mutex
	records map[string]JobRecord
	failFor map[string]error
}

func newMemSink() *memSink {
	return &memSink{records: map[string]JobRecord{}, failFor: map[string]error{}}
}

func (s *memSink) Upsert(_ context.Context, key RecordKey, record JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[key.String()]; ok {
		return err
	}
	s.records[key.String()] = record
	return nil
}

func (s *memSink) Exists(_ context.Context, key RecordKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key.String()]
	return ok, nil
}

func (s *memSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// failingIndex wraps the behavior of a dedup index whose backing store is
// down.
type failingIndex struct {
	err error
}

func (i failingIndex) HasKey(context.Context, string, string) (bool, error) {
	return false, i.err
}

func (i failingIndex) HasContent(context.Context, string, string) (bool, error) {
	return false, i.err
}

func (i failingIndex) Add(context.Context, string, string, string) error {
	return i.err
}
