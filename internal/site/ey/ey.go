// Package ey adapts the EY careers portal: a server-rendered SuccessFactors
// board with country-filtered search and numbered pagination.
package ey

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobsift/jobsift/internal/ingest"
)

const (
	siteID  = "ey"
	baseURL = "https://careers.ey.com"
)

// countryCodes maps the country names accepted in query parameters to the
// facet codes the portal's search form submits.
var countryCodes = map[string]string{
	"united states":  "US",
	"usa":            "US",
	"us":             "US",
	"united kingdom": "GB",
	"uk":             "GB",
	"canada":         "CA",
	"germany":        "DE",
	"france":         "FR",
	"india":          "IN",
	"australia":      "AU",
	"ireland":        "IE",
	"netherlands":    "NL",
	"spain":          "ES",
	"poland":         "PL",
	"japan":          "JP",
	"singapore":      "SG",
	"brazil":         "BR",
	"mexico":         "MX",
}

// Adapter implements ingest.Adapter for the EY board.
type Adapter struct{}

// New returns the EY adapter.
func New() *Adapter {
	return &Adapter{}
}

// Profile describes the board: plain HTML, no login, no rendering wait.
func (a *Adapter) Profile() ingest.AdapterProfile {
	return ingest.AdapterProfile{
		Site:    siteID,
		BaseURL: baseURL,
	}
}

// BuildListingURL constructs the first search page from country and keyword
// parameters. The country must resolve to a known facet code.
func (a *Adapter) BuildListingURL(params ingest.QueryParams) (string, error) {
	code, err := resolveCountry(params.Country)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("q", params.Keywords)
	q.Set("locationsearch", "")
	q.Set("optionsFacetsDD_country", code)
	return baseURL + "/search/?" + q.Encode(), nil
}

// ExtractDetailLinks pulls the job links out of a search results table,
// resolving relative hrefs against the site base.
func (a *Adapter) ExtractDetailLinks(page ingest.Page) ([]ingest.DetailLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	var links []ingest.DetailLink
	doc.Find("tr.data-row a.jobTitle-link").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
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

// FindNextPage follows the pagination control's Next link, returning "" on
// the last page.
func (a *Adapter) FindNextPage(page ingest.Page) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	href, ok := doc.Find(`a.pagination-link[aria-label="Next"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", nil
	}
	return ingest.ResolveRef(page.URL, href)
}

// ExtractFields reads the job detail properties the portal tags with
// data-careersite-propertyid attributes. Missing sections leave the field
// absent.
func (a *Adapter) ExtractFields(page ingest.Page) (ingest.RawFieldMap, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return ingest.RawFieldMap{}, &ingest.ExtractionError{URL: page.URL, Err: err}
	}

	var fields ingest.RawFieldMap
	setProperty(doc, &fields, ingest.FieldTitle, "title")
	fields.Set(ingest.FieldCompany, "EY")
	setProperty(doc, &fields, ingest.FieldLocation, "city")
	setProperty(doc, &fields, ingest.FieldOtherLocations, "customfield3")
	setProperty(doc, &fields, ingest.FieldSalary, "salary")
	setProperty(doc, &fields, ingest.FieldPostedDate, "date")
	setProperty(doc, &fields, ingest.FieldDescription, "description")
	return fields, nil
}

// setProperty copies one tagged property into the field map when present.
func setProperty(doc *goquery.Document, fields *ingest.RawFieldMap, name, propertyID string) {
	sel := doc.Find(fmt.Sprintf(`[data-careersite-propertyid=%q]`, propertyID)).First()
	if sel.Length() == 0 {
		return
	}
	fields.Set(name, strings.TrimSpace(sel.Text()))
}

func resolveCountry(country string) (string, error) {
	if country == "" {
		return "", fmt.Errorf("ey: country parameter is required")
	}
	key := strings.ToLower(strings.TrimSpace(country))
	if code, ok := countryCodes[key]; ok {
		return code, nil
	}
	// Accept a facet code passed directly.
	if len(key) == 2 {
		return strings.ToUpper(key), nil
	}
	return "", fmt.Errorf("ey: unknown country %q", country)
}
