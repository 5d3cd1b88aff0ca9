// Package glassdoor adapts the Glassdoor job board: a client-rendered
// aggregator whose card and detail markup carries build-hashed class names.
package glassdoor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobsift/jobsift/internal/ingest"
)

const (
	siteID  = "glassdoor"
	baseURL = "https://www.glassdoor.com"

	// cardSelector is the rendered listing card the fetcher must wait for.
	cardSelector = "div[data-test='JobListing']"
)

// Adapter implements ingest.Adapter for Glassdoor.
type Adapter struct{}

// New returns the Glassdoor adapter.
func New() *Adapter {
	return &Adapter{}
}

// Profile marks the board as client-rendered via its wait selector.
func (a *Adapter) Profile() ingest.AdapterProfile {
	return ingest.AdapterProfile{
		Site:         siteID,
		BaseURL:      baseURL,
		WaitSelector: cardSelector,
	}
}

// BuildListingURL starts the crawl at the default job index. Search terms
// are encoded into opaque path segments on this board, so a targeted crawl
// pins its listing URL through the listing_url extra instead.
func (a *Adapter) BuildListingURL(params ingest.QueryParams) (string, error) {
	if pinned := params.Extra["listing_url"]; pinned != "" {
		u, err := url.Parse(pinned)
		if err != nil || !u.IsAbs() {
			return "", fmt.Errorf("glassdoor listing_url must be an absolute URL, got %q", pinned)
		}
		return pinned, nil
	}
	return baseURL + "/Job/index.htm", nil
}

// ExtractDetailLinks reads the title anchor out of each rendered card.
// Class names carry build hashes, so selectors match on the stable prefix.
func (a *Adapter) ExtractDetailLinks(page ingest.Page) ([]ingest.DetailLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	var links []ingest.DetailLink
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a[class^='JobCard_jobTitle']").First().Attr("href")
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

// FindNextPage always terminates: the board renders its result set as one
// incrementally loaded list, so a crawl takes the initially rendered cards.
func (a *Adapter) FindNextPage(ingest.Page) (string, error) {
	return "", nil
}

// ExtractFields reads the rendered job view. Location and salary reuse the
// job-location-/job-salary- element id scheme the listing cards carry.
func (a *Adapter) ExtractFields(page ingest.Page) (ingest.RawFieldMap, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return ingest.RawFieldMap{}, &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	var fields ingest.RawFieldMap
	setFirst(doc, &fields, ingest.FieldTitle, "h1")
	setFirst(doc, &fields, ingest.FieldCompany, "[class^='EmployerProfile_compactEmployerName']")
	setFirst(doc, &fields, ingest.FieldLocation, "div[id^='job-location-']")
	setFirst(doc, &fields, ingest.FieldSalary, "div[id^='job-salary-']")

	// The description renders as separate paragraphs; join them so the
	// record carries one text blob.
	var paragraphs []string
	doc.Find("div[class^='JobDetails_jobDescription'] p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		fields.Set(ingest.FieldDescription, strings.Join(paragraphs, " "))
	}

	return fields, nil
}

func setFirst(doc *goquery.Document, fields *ingest.RawFieldMap, name, selector string) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return
	}
	fields.Set(name, strings.TrimSpace(sel.Text()))
}
