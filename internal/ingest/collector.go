package ingest

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jobsift/jobsift/internal/metrics"
)

// DetailResult is one slot of a collected batch: either the raw fields for
// the link or a DetailError, never both.
type DetailResult struct {
	Link   DetailLink
	Fields RawFieldMap
	Err    *DetailError
}

// CollectorConfig bounds the detail fetch pool.
type CollectorConfig struct {
	Concurrency int
}

// DetailCollector fetches detail pages through a bounded worker pool.
// Completion order is nondeterministic, but results are slotted in input
// order so concurrency never leaks into observable record ordering. A
// failure on one link fills that slot with a DetailError and never aborts
// the batch.
type DetailCollector struct {
	fetcher Fetcher
	adapter Adapter
	pacer   Pacer
	session *Session
	cfg     CollectorConfig
	logger  *zap.Logger
}

// NewDetailCollector builds a collector sharing the pacer with the
// pagination walk.
func NewDetailCollector(
	fetcher Fetcher,
	adapter Adapter,
	pacer Pacer,
	session *Session,
	cfg CollectorConfig,
	logger *zap.Logger,
) *DetailCollector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailCollector{
		fetcher: fetcher,
		adapter: adapter,
		pacer:   pacer,
		session: session,
		cfg:     cfg,
		logger:  logger,
	}
}

// Collect fetches every link and returns one result per input link, in
// input order. Cancellation stops issuing new fetches; slots already
// completed are preserved and the rest carry the cancellation cause.
func (c *DetailCollector) Collect(ctx context.Context, links []DetailLink) []DetailResult {
	results := make([]DetailResult, len(links))
	profile := c.adapter.Profile()
	gate := newRefreshGate(c.session)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, link := range links {
		if ctx.Err() != nil {
			results[i] = canceledResult(link, ctx.Err())
			continue
		}
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			results[i] = c.collectOne(gctx, profile, gate, link)
			return nil
		})
	}
	// Workers never return errors; Wait is only a join point.
	_ = g.Wait()

	return results
}

func (c *DetailCollector) collectOne(
	ctx context.Context,
	profile AdapterProfile,
	gate *refreshGate,
	link DetailLink,
) DetailResult {
	if err := c.pacer.Wait(ctx, link.URL); err != nil {
		return canceledResult(link, err)
	}

	req := FetchRequest{
		URL:          link.URL,
		WaitSelector: profile.WaitSelector,
		LoginPattern: loginPatternString(profile),
	}

	observedGen := gate.current()
	page, err := c.fetcher.Fetch(ctx, req)
	if err != nil && isNotAuthenticated(err) {
		// A mid-run session expiry pauses everyone behind a single refresh
		// rather than letting each worker re-authenticate on its own.
		if refreshErr := gate.ensureFresh(ctx, observedGen); refreshErr == nil {
			page, err = c.fetcher.Fetch(ctx, req)
		}
	}
	if err != nil {
		metrics.ObserveDetailFetch(link.Site, "error")
		c.logger.Warn("detail fetch failed",
			zap.String("site", link.Site),
			zap.String("url", link.URL),
			zap.Error(err),
		)
		return DetailResult{Link: link, Err: &DetailError{Link: link, Err: err}}
	}

	fields, err := c.adapter.ExtractFields(page)
	if err != nil {
		metrics.ObserveDetailFetch(link.Site, "extraction_error")
		return DetailResult{
			Link: link,
			Err:  &DetailError{Link: link, Err: &ExtractionError{URL: page.URL, Err: err}},
		}
	}

	metrics.ObserveDetailFetch(link.Site, "ok")
	return DetailResult{Link: link, Fields: fields}
}

func canceledResult(link DetailLink, cause error) DetailResult {
	return DetailResult{Link: link, Err: &DetailError{Link: link, Err: cause}}
}

func isNotAuthenticated(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchNotAuthenticated
}

// refreshGate serializes session refresh: the first worker that detects an
// expired session performs the refresh, the rest wait and reuse it.
type refreshGate struct {
	session *Session
	mu      sync.Mutex
	gen     int
}

func newRefreshGate(session *Session) *refreshGate {
	return &refreshGate{session: session}
}

// current returns the refresh generation a worker observed before fetching.
func (g *refreshGate) current() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// ensureFresh refreshes the session at most once per expiry generation.
// Workers that detected the same stale session block on the mutex, then see
// the advanced generation and skip straight to their retry, so a herd of
// concurrent expiries produces exactly one refresh.
func (g *refreshGate) ensureFresh(ctx context.Context, observed int) error {
	if g.session == nil || g.session.Refresher == nil {
		return ErrAuthenticationRequired
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gen > observed {
		return nil
	}
	if err := g.session.Refresher.Refresh(ctx); err != nil {
		return err
	}
	g.gen++
	return nil
}
