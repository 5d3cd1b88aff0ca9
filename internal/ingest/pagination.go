package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/metrics"
)

// PaginationConfig bounds a listing walk.
type PaginationConfig struct {
	// MaxPages is a hard safety bound against infinite-pagination bugs.
	MaxPages int
}

// PaginationCrawler drives an Adapter across successive listing pages until
// the adapter signals the last page or MaxPages is reached. The walk is
// strictly sequential: each page's URL comes from the previous page's
// content. Detail workers never touch its state.
type PaginationCrawler struct {
	fetcher Fetcher
	adapter Adapter
	pacer   Pacer
	cfg     PaginationConfig
	logger  *zap.Logger
}

// NewPaginationCrawler builds a crawler for one adapter.
func NewPaginationCrawler(
	fetcher Fetcher,
	adapter Adapter,
	pacer Pacer,
	cfg PaginationConfig,
	logger *zap.Logger,
) *PaginationCrawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaginationCrawler{
		fetcher: fetcher,
		adapter: adapter,
		pacer:   pacer,
		cfg:     cfg,
		logger:  logger,
	}
}

// Crawl walks the listing pagination and returns the deduplicated, ordered
// sequence of detail links discovered. A non-transient fetch failure aborts
// the walk: a truncated link set would corrupt dedup decisions in later
// runs, so partial discovery is an error, not a result.
func (c *PaginationCrawler) Crawl(ctx context.Context, params QueryParams) ([]DetailLink, error) {
	profile := c.adapter.Profile()

	currentURL, err := c.adapter.BuildListingURL(params)
	if err != nil {
		return nil, fmt.Errorf("build listing url: %w", err)
	}

	state := newCrawlState()
	var links []DetailLink

	for currentURL != "" {
		if state.pagesVisited >= c.cfg.MaxPages {
			c.logger.Warn("pagination safety bound reached",
				zap.String("site", profile.Site),
				zap.Int("max_pages", c.cfg.MaxPages),
			)
			return links, fmt.Errorf("site %s: %w", profile.Site, ErrMaxPagesExceeded)
		}

		if state.pagesVisited > 0 {
			if err := c.pacer.Wait(ctx, currentURL); err != nil {
				return links, err
			}
		}

		page, err := c.fetcher.Fetch(ctx, FetchRequest{
			URL:          currentURL,
			WaitSelector: profile.WaitSelector,
			LoginPattern: loginPatternString(profile),
		})
		state.pagesVisited++
		if err != nil {
			state.failures++
			metrics.ObserveListingPage(profile.Site, "error")
			c.logger.Error("listing fetch failed",
				zap.String("site", profile.Site),
				zap.String("url", currentURL),
				zap.Error(err),
			)
			return links, fmt.Errorf("listing page %d: %w", state.pagesVisited, err)
		}
		metrics.ObserveListingPage(profile.Site, "ok")

		pageLinks, err := c.adapter.ExtractDetailLinks(page)
		if err != nil {
			return links, &ExtractionError{URL: page.URL, Err: err}
		}

		fresh := 0
		for _, link := range pageLinks {
			link.PageIndex = state.pagesVisited - 1
			if state.markIfNew(link.URL) {
				links = append(links, link)
				fresh++
			}
		}
		c.logger.Debug("listing page processed",
			zap.String("site", profile.Site),
			zap.String("url", page.URL),
			zap.Int("links", len(pageLinks)),
			zap.Int("new_links", fresh),
		)

		currentURL, err = c.adapter.FindNextPage(page)
		if err != nil {
			return links, &ExtractionError{URL: page.URL, Err: err}
		}
	}

	c.logger.Info("pagination complete",
		zap.String("site", profile.Site),
		zap.Int("pages", state.pagesVisited),
		zap.Int("links", len(links)),
	)
	return links, nil
}

func loginPatternString(p AdapterProfile) string {
	if p.LoginPattern == nil {
		return ""
	}
	return p.LoginPattern.String()
}
