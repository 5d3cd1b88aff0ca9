// Package memory provides in-process implementations of the record sink and
// dedup index, used by tests and by deployments without external storage.
package memory

import (
	"context"
	"sync"

	"github.com/jobsift/jobsift/internal/ingest"
)

// Sink stores records in a map keyed by site/external-id.
type Sink struct {
	mu      sync.RWMutex
	records map[string]ingest.JobRecord
}

// NewSink returns an empty in-memory sink.
func NewSink() *Sink {
	return &Sink{records: make(map[string]ingest.JobRecord)}
}

// Upsert stores or replaces the record under its key.
func (s *Sink) Upsert(_ context.Context, key ingest.RecordKey, record ingest.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key.String()] = record
	return nil
}

// Exists reports whether the key has been stored.
func (s *Sink) Exists(_ context.Context, key ingest.RecordKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key.String()]
	return ok, nil
}

// Len reports the number of stored records.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the stored record for a key.
func (s *Sink) Get(key ingest.RecordKey) (ingest.JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key.String()]
	return rec, ok
}

// Index is a map-backed dedup index with no expiry.
type Index struct {
	mu       sync.RWMutex
	keys     map[string]struct{}
	contents map[string]struct{}
}

// NewIndex returns an empty in-memory index.
func NewIndex() *Index {
	return &Index{
		keys:     make(map[string]struct{}),
		contents: make(map[string]struct{}),
	}
}

// HasKey reports whether the identity key was seen in any prior run.
func (i *Index) HasKey(_ context.Context, site, externalID string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.keys[site+"/"+externalID]
	return ok, nil
}

// HasContent reports whether the content hash was seen in any prior run.
func (i *Index) HasContent(_ context.Context, site, contentHash string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.contents[site+"/"+contentHash]
	return ok, nil
}

// Add records both keys for the record.
func (i *Index) Add(_ context.Context, site, externalID, contentHash string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[site+"/"+externalID] = struct{}{}
	if contentHash != "" {
		i.contents[site+"/"+contentHash] = struct{}{}
	}
	return nil
}
