package ingest

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/metrics"
)

// RunConfig carries the crawl knobs one run executes under.
type RunConfig struct {
	MaxPages    int
	Concurrency int
}

// CrawlRun orchestrates one end-to-end crawl for a single site:
// pagination walk, detail collection, normalization, deduplication, and
// hand-off to the record sink.
type CrawlRun struct {
	adapter    Adapter
	fetcher    Fetcher
	pacer      Pacer
	index      DedupIndex
	sink       RecordSink
	session    *Session
	clock      Clock
	cfg        RunConfig
	logger     *zap.Logger
	normalizer *Normalizer
}

// NewCrawlRun wires a run. session may be nil for sites that do not need
// one; clock may be nil to use system time.
func NewCrawlRun(
	adapter Adapter,
	fetcher Fetcher,
	pacer Pacer,
	index DedupIndex,
	sink RecordSink,
	session *Session,
	clock Clock,
	cfg RunConfig,
	logger *zap.Logger,
) *CrawlRun {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlRun{
		adapter:    adapter,
		fetcher:    fetcher,
		pacer:      pacer,
		index:      index,
		sink:       sink,
		session:    session,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
		normalizer: NewNormalizer(clock),
	}
}

// Execute runs the crawl and returns the summary plus the new records that
// were handed to the sink. Run-level failures abort with whatever was
// gathered so far and Aborted set; per-item failures only fill error slots.
func (r *CrawlRun) Execute(ctx context.Context, params QueryParams) (CrawlSummary, []JobRecord) {
	profile := r.adapter.Profile()
	summary := CrawlSummary{
		RunID:   uuid.NewString(),
		Site:    profile.Site,
		Started: r.clock.Now(),
	}
	logger := r.logger.With(
		zap.String("site", profile.Site),
		zap.String("run_id", summary.RunID),
	)

	// Fail fast before any network call: a portal that needs a session
	// cannot be crawled without one, and retrying per page would be waste.
	if profile.RequiresSession && r.session == nil {
		logger.Warn("run aborted: no authenticated session configured")
		return r.finish(summary, ErrAuthenticationRequired.Error()), nil
	}

	crawler := NewPaginationCrawler(r.fetcher, r.adapter, r.pacer, PaginationConfig{
		MaxPages: r.cfg.MaxPages,
	}, logger)

	links, err := crawler.Crawl(ctx, params)
	summary.Discovered = len(links)
	if err != nil {
		// The fetcher already spent its retry budget; a truncated link set
		// would corrupt later dedup decisions, so the run aborts here.
		summary.Errors = append(summary.Errors, ErrorReport{
			Stage: "pagination",
			Error: err.Error(),
		})
		logger.Error("pagination aborted run", zap.Error(err))
		return r.finish(summary, err.Error()), nil
	}

	collector := NewDetailCollector(r.fetcher, r.adapter, r.pacer, r.session, CollectorConfig{
		Concurrency: r.cfg.Concurrency,
	}, logger)
	results := collector.Collect(ctx, links)

	var records []JobRecord
	for _, res := range results {
		if res.Err != nil {
			summary.Errors = append(summary.Errors, ErrorReport{
				URL:   res.Link.URL,
				Stage: "detail",
				Error: res.Err.Error(),
			})
			continue
		}
		summary.Fetched++

		rec, err := r.normalizer.Normalize(profile.Site, res.Link, res.Fields)
		if err != nil {
			metrics.ObserveRecord(profile.Site, "rejected")
			summary.Errors = append(summary.Errors, ErrorReport{
				URL:   res.Link.URL,
				Stage: "normalize",
				Error: err.Error(),
			})
			continue
		}
		summary.Normalized++
		records = append(records, rec)
	}

	fresh, duplicates, err := NewRunDeduplicator(r.index, logger).Dedupe(ctx, records)
	summary.New = len(fresh)
	summary.Duplicates = len(duplicates)
	if err != nil {
		summary.Errors = append(summary.Errors, ErrorReport{Stage: "dedupe", Error: err.Error()})
		return r.finish(summary, err.Error()), fresh
	}

	for _, rec := range fresh {
		if err := r.sink.Upsert(ctx, rec.Key(), rec); err != nil {
			summary.Errors = append(summary.Errors, ErrorReport{
				URL:   rec.URL,
				Stage: "sink",
				Error: err.Error(),
			})
		}
	}

	logger.Info("crawl run complete",
		zap.Int("discovered", summary.Discovered),
		zap.Int("fetched", summary.Fetched),
		zap.Int("new", summary.New),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("errors", len(summary.Errors)),
	)
	return r.finish(summary, ""), fresh
}

func (r *CrawlRun) finish(summary CrawlSummary, abortReason string) CrawlSummary {
	summary.Finished = r.clock.Now()
	if abortReason != "" {
		summary.Aborted = true
		summary.Reason = abortReason
	}
	status := "completed"
	if summary.Aborted {
		status = "aborted"
	}
	metrics.ObserveRun(summary.Site, status, summary.Finished.Sub(summary.Started))
	return summary
}
