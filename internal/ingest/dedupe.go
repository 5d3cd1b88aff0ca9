package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/metrics"
)

// RunDeduplicator splits a batch of records into new and already-seen
// against the cross-run DedupIndex. Duplicates are reported, never merged:
// downstream decides whether to refresh an existing record.
type RunDeduplicator struct {
	index  DedupIndex
	logger *zap.Logger
}

// NewRunDeduplicator builds a deduplicator over the given index.
func NewRunDeduplicator(index DedupIndex, logger *zap.Logger) *RunDeduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunDeduplicator{index: index, logger: logger}
}

// Dedupe classifies each record. A record is a duplicate when its
// (site, externalID) key is already indexed, or when its content hash
// matches an indexed posting for the same site — the latter catches
// re-posted listings under a new URL. New records are inserted into the
// index as part of the same pass, so running Dedupe twice over one batch is
// idempotent: the second pass yields zero new records.
func (d *RunDeduplicator) Dedupe(ctx context.Context, records []JobRecord) (fresh, duplicates []JobRecord, err error) {
	for _, rec := range records {
		contentHash := ContentHash(rec)

		seen, err := d.index.HasKey(ctx, rec.Site, rec.ExternalID)
		if err != nil {
			return fresh, duplicates, fmt.Errorf("dedup key lookup: %w", err)
		}
		// A record with no descriptive content has no content hash; only the
		// identity key can classify it.
		if !seen && contentHash != "" {
			seen, err = d.index.HasContent(ctx, rec.Site, contentHash)
			if err != nil {
				return fresh, duplicates, fmt.Errorf("dedup content lookup: %w", err)
			}
		}

		if seen {
			duplicates = append(duplicates, rec)
			metrics.ObserveRecord(rec.Site, "duplicate")
			continue
		}

		if err := d.index.Add(ctx, rec.Site, rec.ExternalID, contentHash); err != nil {
			return fresh, duplicates, fmt.Errorf("dedup index add: %w", err)
		}
		fresh = append(fresh, rec)
		metrics.ObserveRecord(rec.Site, "new")
	}

	d.logger.Debug("batch deduplicated",
		zap.Int("input", len(records)),
		zap.Int("new", len(fresh)),
		zap.Int("duplicates", len(duplicates)),
	)
	return fresh, duplicates, nil
}
