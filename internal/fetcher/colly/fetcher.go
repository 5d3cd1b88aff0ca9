// Package collyfetcher implements ingest.Fetcher for server-rendered pages
// using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jobsift/jobsift/internal/ingest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher performs one HTTP GET per Fetch call via a cloned Colly
// collector. It classifies failures into the ingest error taxonomy; retry
// scheduling lives in the retrying wrapper, not here.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher with a pooled transport shared by all clones.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single GET and returns the loaded page with its final
// URL after redirects.
func (f *Fetcher) Fetch(ctx context.Context, req ingest.FetchRequest) (ingest.Page, error) {
	var (
		page     ingest.Page
		respErr  error
		respCode int
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		page = ingest.Page{
			URL:       r.Request.URL.String(),
			Body:      append([]byte(nil), r.Body...),
			FetchedAt: time.Now().UTC(),
		}
		respCode = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		respErr = err
		if r != nil {
			respCode = r.StatusCode
		}
	})

	visitErr, err := runVisit(ctx, collector, req.URL)
	if err != nil {
		return ingest.Page{}, err
	}
	if respErr == nil {
		// Visit failures that never reached OnError (bad URL, dial error).
		respErr = visitErr
	}
	if respErr != nil {
		return ingest.Page{}, classify(req.URL, respCode, respErr)
	}
	if respCode >= http.StatusBadRequest {
		return ingest.Page{}, &ingest.FetchError{
			Kind:   ingest.FetchHTTPError,
			URL:    req.URL,
			Status: respCode,
		}
	}

	if notAuthenticated(req.LoginPattern, page.URL) {
		return ingest.Page{}, &ingest.FetchError{
			Kind: ingest.FetchNotAuthenticated,
			URL:  req.URL,
		}
	}
	return page, nil
}

func runVisit(ctx context.Context, collector *colly.Collector, url string) (error, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err, nil
	}
}

// classify maps a Colly failure onto the typed fetch taxonomy.
func classify(url string, status int, err error) *ingest.FetchError {
	if status >= http.StatusBadRequest {
		return &ingest.FetchError{Kind: ingest.FetchHTTPError, URL: url, Status: status, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ingest.FetchError{Kind: ingest.FetchTimeout, URL: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ingest.FetchError{Kind: ingest.FetchTimeout, URL: url, Err: err}
	}
	return &ingest.FetchError{Kind: ingest.FetchNetworkError, URL: url, Err: err}
}

// notAuthenticated reports whether the final URL landed on a login page.
func notAuthenticated(pattern, finalURL string) bool {
	if pattern == "" || finalURL == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(finalURL)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
