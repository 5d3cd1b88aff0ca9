package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/api"
	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/ingest"
	"github.com/jobsift/jobsift/internal/site"
)

// CrawlService executes crawl runs against registered sites, choosing the
// plain or rendered fetcher from the adapter's profile. It satisfies both
// api.CrawlRunner and scheduler.Runner.
type CrawlService struct {
	registry *site.Registry
	plain    ingest.Fetcher
	rendered ingest.Fetcher
	pacer    ingest.Pacer
	index    ingest.DedupIndex
	sink     ingest.RecordSink
	sessions map[string]*ingest.Session
	cfg      config.Config
	logger   *zap.Logger
}

// NewCrawlService wires a service. sessions maps site ids to their
// authenticated fetch contexts; sites absent from the map run without one.
func NewCrawlService(
	registry *site.Registry,
	plain ingest.Fetcher,
	rendered ingest.Fetcher,
	pacer ingest.Pacer,
	index ingest.DedupIndex,
	sink ingest.RecordSink,
	sessions map[string]*ingest.Session,
	cfg config.Config,
	logger *zap.Logger,
) *CrawlService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlService{
		registry: registry,
		plain:    plain,
		rendered: rendered,
		pacer:    pacer,
		index:    index,
		sink:     sink,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one crawl for the site and returns its summary.
func (s *CrawlService) Run(ctx context.Context, siteID string, params ingest.QueryParams) (ingest.CrawlSummary, error) {
	adapter, ok := s.registry.Lookup(siteID)
	if !ok {
		return ingest.CrawlSummary{}, fmt.Errorf("%w: %q", api.ErrUnknownSite, siteID)
	}

	profile := adapter.Profile()
	fetcher := s.plain
	if profile.WaitSelector != "" {
		if s.rendered == nil {
			return ingest.CrawlSummary{}, fmt.Errorf("site %q needs a rendering fetcher and none is configured", siteID)
		}
		fetcher = s.rendered
	}

	run := ingest.NewCrawlRun(
		adapter,
		fetcher,
		s.pacer,
		s.index,
		s.sink,
		s.sessions[siteID],
		nil,
		ingest.RunConfig{
			MaxPages:    s.cfg.Crawl.MaxPages,
			Concurrency: s.cfg.Crawl.Concurrency,
		},
		s.logger,
	)
	summary, _ := run.Execute(ctx, params)
	return summary, nil
}
