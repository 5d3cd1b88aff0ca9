// Package motion adapts the Motion Recruitment board: a client-rendered
// single-page job list that needs a headless fetch.
package motion

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobsift/jobsift/internal/ingest"
)

const (
	siteID  = "motion"
	baseURL = "https://motionrecruitment.com"

	// listSelector is the rendered job list the fetcher must wait for.
	listSelector = "ul.JobsList_module_list"
)

// Adapter implements ingest.Adapter for Motion Recruitment.
type Adapter struct{}

// New returns the Motion adapter.
func New() *Adapter {
	return &Adapter{}
}

// Profile marks the board as client-rendered via its wait selector.
func (a *Adapter) Profile() ingest.AdapterProfile {
	return ingest.AdapterProfile{
		Site:         siteID,
		BaseURL:      baseURL,
		WaitSelector: listSelector,
	}
}

// BuildListingURL points at the tech jobs list, optionally filtered by a
// keyword search.
func (a *Adapter) BuildListingURL(params ingest.QueryParams) (string, error) {
	listing := baseURL + "/tech-jobs"
	if params.Keywords == "" {
		return listing, nil
	}
	q := url.Values{}
	q.Set("search", params.Keywords)
	return listing + "?" + q.Encode(), nil
}

// ExtractDetailLinks reads the first link out of each rendered job card.
func (a *Adapter) ExtractDetailLinks(page ingest.Page) ([]ingest.DetailLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	var links []ingest.DetailLink
	doc.Find("li.JobItem_module_jobItem").Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find("a[href]").First().Attr("href")
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

// FindNextPage always terminates: the board renders the whole result set in
// one scrollable list.
func (a *Adapter) FindNextPage(ingest.Page) (string, error) {
	return "", nil
}

// ExtractFields reads the rendered job view. The posting author stands in
// for a company field on this board; jobs are listed by the staffing firm's
// recruiters, not by the hiring company.
func (a *Adapter) ExtractFields(page ingest.Page) (ingest.RawFieldMap, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return ingest.RawFieldMap{}, &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	var fields ingest.RawFieldMap
	setText(doc, &fields, ingest.FieldTitle, "h1")
	setText(doc, &fields, ingest.FieldCompany, "p.JobView_module_author")
	setText(doc, &fields, ingest.FieldLocation, "div.JobItem_module_jobDetailsSection p")

	// The details strip lists job type first, salary second.
	details := doc.Find("p.JobDetailsItem_module_jobDetailsText")
	if details.Length() > 1 {
		if salary := strings.TrimSpace(details.Eq(1).Text()); salary != "" {
			fields.Set(ingest.FieldSalary, salary)
		}
	}

	setText(doc, &fields, ingest.FieldDescription, "div.JobView_module_jobDescription")
	return fields, nil
}

func setText(doc *goquery.Document, fields *ingest.RawFieldMap, name, selector string) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return
	}
	fields.Set(name, strings.TrimSpace(sel.Text()))
}
