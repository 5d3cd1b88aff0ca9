// Package headless implements ingest.Fetcher for client-rendered pages
// using chromedp and headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/jobsift/jobsift/internal/ingest"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ProfileDir points Chrome at a persistent user profile. Sites that
	// require a logged-in session get their cookies from here; the profile
	// is read-shared by all workers and never mutated mid-run.
	ProfileDir string
}

// Fetcher renders pages in headless Chrome, waiting for the adapter's
// required selector before snapshotting the DOM.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless fetcher backed by a shared exec allocator.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, shutting the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates to the URL, waits for the requested selector, and returns
// the rendered DOM with the final URL after any client-side redirects.
func (f *Fetcher) Fetch(ctx context.Context, req ingest.FetchRequest) (ingest.Page, error) {
	if err := f.acquire(ctx); err != nil {
		return ingest.Page{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	html, finalURL, err := f.runNavigation(taskCtx, req)
	if err != nil {
		var fe *ingest.FetchError
		if errors.As(err, &fe) {
			return ingest.Page{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ingest.Page{}, &ingest.FetchError{Kind: ingest.FetchTimeout, URL: req.URL, Err: err}
		}
		if ctx.Err() != nil {
			return ingest.Page{}, fmt.Errorf("headless fetch canceled: %w", ctx.Err())
		}
		return ingest.Page{}, &ingest.FetchError{Kind: ingest.FetchNetworkError, URL: req.URL, Err: err}
	}

	return ingest.Page{
		URL:       finalURL,
		Body:      []byte(html),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *Fetcher) runNavigation(ctx context.Context, req ingest.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.userAgentAction(),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		// A login redirect is decided before waiting on content selectors:
		// an unauthenticated portal never shows them and would otherwise
		// misreport as a timeout.
		chromedp.ActionFunc(func(context.Context) error {
			if landedOnLogin(req.LoginPattern, finalURL) {
				return &ingest.FetchError{Kind: ingest.FetchNotAuthenticated, URL: req.URL}
			}
			return nil
		}),
	}
	if req.WaitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(req.WaitSelector, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		var fe *ingest.FetchError
		if errors.As(err, &fe) {
			return "", "", fe
		}
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if f.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func landedOnLogin(pattern, finalURL string) bool {
	if pattern == "" || finalURL == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(finalURL)
}
