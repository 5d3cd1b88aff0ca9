// Package handshake adapts the Handshake student job portal: client-rendered,
// login-gated, paginated through a page query parameter.
package handshake

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobsift/jobsift/internal/ingest"
)

const (
	siteID = "handshake"

	// cardSelector marks a loaded results page; it doubles as the fetch wait
	// selector and the pagination termination probe.
	cardSelector = `div[data-hook^='job-result-card']`
)

var loginPattern = regexp.MustCompile(`(?i)/login`)

// Adapter implements ingest.Adapter for a Handshake portal. The base URL is
// school-specific, so it is injected rather than fixed.
type Adapter struct {
	baseURL string
}

// New returns a Handshake adapter rooted at the given portal URL.
func New(portalURL string) (*Adapter, error) {
	if portalURL == "" {
		return nil, fmt.Errorf("handshake: portal url is required")
	}
	u, err := url.Parse(portalURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("handshake: portal url %q is not absolute", portalURL)
	}
	return &Adapter{baseURL: strings.TrimRight(portalURL, "/")}, nil
}

// Profile marks the portal as rendered and session-gated.
func (a *Adapter) Profile() ingest.AdapterProfile {
	return ingest.AdapterProfile{
		Site:            siteID,
		BaseURL:         a.baseURL,
		WaitSelector:    cardSelector,
		LoginPattern:    loginPattern,
		RequiresSession: true,
	}
}

// BuildListingURL starts the search on page 1 with an optional keyword
// filter.
func (a *Adapter) BuildListingURL(params ingest.QueryParams) (string, error) {
	q := url.Values{}
	q.Set("page", "1")
	if params.Keywords != "" {
		q.Set("query", params.Keywords)
	}
	return a.baseURL + "/job-search?" + q.Encode(), nil
}

// ExtractDetailLinks reads the job link out of each result card.
func (a *Adapter) ExtractDetailLinks(page ingest.Page) ([]ingest.DetailLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	var links []ingest.DetailLink
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(`a[href*='/jobs/']`).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		abs, err := ingest.ResolveRef(page.URL, href)
		if err != nil {
			return
		}
		links = append(links, ingest.DetailLink{URL: abs, Site: siteID})
	})
	return links, nil
}

// FindNextPage increments the page query parameter. The portal serves empty
// result pages past the end rather than omitting a next control, so a page
// with no cards terminates the walk.
func (a *Adapter) FindNextPage(page ingest.Page) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", &ingest.ExtractionError{URL: page.URL, Err: err}
	}
	if doc.Find(cardSelector).Length() == 0 {
		return "", nil
	}

	u, err := url.Parse(page.URL)
	if err != nil {
		return "", &ingest.ExtractionError{URL: page.URL, Err: err}
	}
	q := u.Query()
	current, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		current = 1
	}
	q.Set("page", strconv.Itoa(current+1))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExtractFields reads the job view panel. Handshake's class names are build
// artifacts that churn between deploys, so each selector is best-effort and
// a miss leaves the field absent.
func (a *Adapter) ExtractFields(page ingest.Page) (ingest.RawFieldMap, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return ingest.RawFieldMap{}, &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	var fields ingest.RawFieldMap
	setFirst(doc, &fields, ingest.FieldTitle, `div[data-hook='job-title']`, "h1")
	setFirst(doc, &fields, ingest.FieldCompany, `a[data-hook='employer-name']`, `div[data-hook='employer-name']`)
	setFirst(doc, &fields, ingest.FieldLocation, `div[data-hook='job-location']`, `span[data-hook='job-location']`)
	setFirst(doc, &fields, ingest.FieldSalary, `div[data-hook='job-pay']`)
	setFirst(doc, &fields, ingest.FieldPostedDate, `span[data-hook='posted-date']`)
	setFirst(doc, &fields, ingest.FieldDescription, `div[data-hook='job-description']`)
	return fields, nil
}

// setFirst records the first selector that matches with non-empty text.
func setFirst(doc *goquery.Document, fields *ingest.RawFieldMap, name string, selectors ...string) {
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			fields.Set(name, text)
			return
		}
	}
}
