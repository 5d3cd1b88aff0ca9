package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jobsift/jobsift/internal/hash"
)

// Normalizer maps raw field maps into canonical JobRecords. It is a pure
// transformation: no I/O, no mutation of inputs.
type Normalizer struct {
	clock Clock
}

// NewNormalizer builds a Normalizer; a nil clock falls back to system time.
func NewNormalizer(clock Clock) *Normalizer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Normalizer{clock: clock}
}

// Normalize builds the canonical record for one detail page. The externalID
// is a pure function of the canonical URL; if the URL cannot be
// canonicalized the record is rejected with a NormalizationError rather
// than stored under an unstable identity.
func (n *Normalizer) Normalize(site string, link DetailLink, fields RawFieldMap) (JobRecord, error) {
	canonical, err := CanonicalURL(link.URL)
	if err != nil {
		return JobRecord{}, &NormalizationError{URL: link.URL, Err: err}
	}

	rec := JobRecord{
		Site:       site,
		ExternalID: hash.ExternalID(canonical),
		URL:        canonical,
		ScrapedAt:  n.clock.Now(),
	}

	rec.Title = textField(fields, FieldTitle)
	rec.Company = textField(fields, FieldCompany)
	rec.Location = textField(fields, FieldLocation)
	rec.OtherLocations = textField(fields, FieldOtherLocations)
	rec.Salary = textField(fields, FieldSalary)
	rec.Description = textField(fields, FieldDescription)

	if raw := textField(fields, FieldPostedDate); raw != nil {
		if posted, ok := parsePostedDate(*raw, rec.ScrapedAt); ok {
			rec.PostedAt = &posted
		} else {
			// Unparseable dates stay absent, with the raw text preserved
			// for diagnostics instead of being discarded.
			rec.PostedRaw = raw
		}
	}

	return rec, nil
}

// ContentHash returns the secondary dedup key over the record's stable
// descriptive fields, or "" when all of them are absent.
func ContentHash(rec JobRecord) string {
	return hash.Content(deref(rec.Title), deref(rec.Company), deref(rec.Description))
}

// textField trims the extracted value and maps empty strings to absent.
func textField(fields RawFieldMap, name string) *string {
	v, ok := fields.Get(name)
	if !ok {
		return nil
	}
	v = collapseSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// collapseSpace trims and squeezes runs of whitespace, including the
// non-breaking spaces job boards are fond of.
func collapseSpace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// postedDateLayouts are the absolute formats observed across the reference
// sites.
var postedDateLayouts = []string{
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
	"1/2/2006",
	time.RFC3339,
}

var relativeDatePattern = regexp.MustCompile(`(?i)^(?:posted\s+)?(\d+)\s+(day|week|month)s?\s+ago$`)

// parsePostedDate normalizes a site's raw posted-date text to UTC midnight.
// Relative phrasings ("3 days ago") resolve against the scrape time.
func parsePostedDate(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)

	for _, layout := range postedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return dateOnly(t), true
		}
	}

	lower := strings.ToLower(raw)
	switch lower {
	case "today", "posted today":
		return dateOnly(now), true
	case "yesterday", "posted yesterday":
		return dateOnly(now.AddDate(0, 0, -1)), true
	}

	if m := relativeDatePattern.FindStringSubmatch(raw); m != nil {
		count, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch strings.ToLower(m[2]) {
		case "day":
			return dateOnly(now.AddDate(0, 0, -count)), true
		case "week":
			return dateOnly(now.AddDate(0, 0, -7*count)), true
		case "month":
			return dateOnly(now.AddDate(0, -count, 0)), true
		}
	}

	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
